package httpapi

import (
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/NeptuneCipher42/rcc-dashboard/internal/model"
	"github.com/NeptuneCipher42/rcc-dashboard/internal/rcc"
	"github.com/NeptuneCipher42/rcc-dashboard/internal/storage"
	"github.com/NeptuneCipher42/rcc-dashboard/internal/telemetry"
)

// multipartMemory is how much of an upload is held in memory before
// spilling to temp files.
const multipartMemory = 32 << 20

func (a *api) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.Status.Health())
}

// status always answers 200; degraded subsystems show up inside the snapshot.
func (a *api) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Status.Status(r.Context()))
}

func (a *api) catalogs(w http.ResponseWriter, r *http.Request) {
	list, err := a.Status.Catalogs(r.Context())
	if err != nil {
		details := err.Error()
		var cmdErr *rcc.CommandError
		if errors.As(err, &cmdErr) {
			details = cmdErr.Details()
		}
		a.log(r).Warn("catalog listing failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "Failed to retrieve catalogs",
			"details": details,
		})
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *api) rebuildCatalogs(w http.ResponseWriter, r *http.Request) {
	res := a.Ops.RebuildCatalogs(r.Context())
	a.log(r).Info("catalog rebuild finished", zap.Bool("success", res.Success), zap.Bool("timed_out", res.TimedOut))
	writeJSON(w, operationStatus(res), res)
}

func (a *api) listRobots(w http.ResponseWriter, r *http.Request) {
	robots, err := a.Robots.ListRobots()
	if err != nil {
		a.storageError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"robots": robots, "count": len(robots)})
}

func (a *api) getRobot(w http.ResponseWriter, r *http.Request) {
	detail, err := a.Robots.GetRobot(r.PathValue("name"))
	if err != nil {
		a.storageError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (a *api) readRobotFile(w http.ResponseWriter, r *http.Request) {
	f, err := a.Robots.ReadRobotFile(r.PathValue("name"), r.PathValue("filename"))
	if err != nil {
		a.storageError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

type createRobotRequest struct {
	Name string `json:"name"`
}

func (a *api) createRobot(w http.ResponseWriter, r *http.Request) {
	var req createRobotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "Robot name is required")
		return
	}
	name, path, err := a.Robots.CreateRobot(req.Name)
	if err != nil {
		a.storageError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"message": "Robot created successfully",
		"name":    name,
		"path":    path,
	})
}

func (a *api) deleteRobot(w http.ResponseWriter, r *http.Request) {
	name, err := a.Robots.DeleteRobot(r.PathValue("name"))
	if err != nil {
		a.storageError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Robot deleted successfully",
		"name":    name,
	})
}

type updateRobotFilesRequest struct {
	RobotYAML string `json:"robot_yaml"`
	CondaYAML string `json:"conda_yaml"`
}

func (a *api) updateRobotFiles(w http.ResponseWriter, r *http.Request) {
	var req updateRobotFilesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	name, err := a.Robots.UpdateRobotCoreFiles(r.PathValue("name"), req.RobotYAML, req.CondaYAML)
	if err != nil {
		a.storageError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Robot files updated successfully",
		"name":    name,
	})
}

func (a *api) uploadRobotFiles(w http.ResponseWriter, r *http.Request) {
	files, ok := a.multipartFiles(w, r, "files")
	if !ok {
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()
	report, err := a.Robots.UploadRobotFiles(r.PathValue("name"), files)
	if err != nil {
		a.storageError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *api) listZips(w http.ResponseWriter, r *http.Request) {
	zips, err := a.Zips.ListZips()
	if err != nil {
		a.storageError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"zips": zips, "count": len(zips)})
}

func (a *api) uploadZip(w http.ResponseWriter, r *http.Request) {
	files, ok := a.multipartFiles(w, r, "file")
	if !ok {
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	filename, err := a.Zips.SaveZip(files[0])
	if err != nil {
		a.storageError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"message":  "ZIP file uploaded successfully",
		"filename": filename,
	})
}

func (a *api) deleteZip(w http.ResponseWriter, r *http.Request) {
	filename, err := a.Zips.DeleteZip(r.PathValue("filename"))
	if err != nil {
		a.storageError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message":  "ZIP file deleted successfully",
		"filename": filename,
	})
}

func (a *api) importZip(w http.ResponseWriter, r *http.Request) {
	filename, err := a.Zips.ZipFile(r.PathValue("filename"))
	if err != nil {
		a.storageError(w, r, err)
		return
	}
	res := a.Ops.ImportZip(r.Context(), filename)
	a.log(r).Info("hololib import finished",
		zap.String("file", filename),
		zap.Bool("success", res.Success),
		zap.Bool("timed_out", res.TimedOut),
	)
	writeJSON(w, operationStatus(res), res)
}

// multipartFiles parses a bounded multipart body and returns the files under
// field. It writes the error response itself when parsing fails.
func (a *api) multipartFiles(w http.ResponseWriter, r *http.Request, field string) ([]*multipart.FileHeader, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, a.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Upload exceeds size limit")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "No files provided")
		return nil, false
	}
	return r.MultipartForm.File[field], true
}

func (a *api) storageError(w http.ResponseWriter, r *http.Request, err error) {
	var se *storage.Error
	if errors.As(err, &se) {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusNotFound, se.Msg)
		case errors.Is(err, storage.ErrConflict):
			writeError(w, http.StatusConflict, se.Msg)
		default:
			writeError(w, http.StatusBadRequest, se.Msg)
		}
		return
	}
	a.log(r).Error("storage operation failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, err.Error())
}

func (a *api) log(r *http.Request) *zap.Logger {
	return telemetry.LoggerWithRequest(r.Context(), a.Logger)
}

func operationStatus(res model.OperationResult) int {
	switch {
	case res.Success:
		return http.StatusOK
	case res.TimedOut:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
