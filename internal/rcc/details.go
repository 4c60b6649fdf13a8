package rcc

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/NeptuneCipher42/rcc-dashboard/internal/model"
)

var digitsRe = regexp.MustCompile(`\d+`)

type catalogDetail struct {
	Blueprint string
	Bytes     int64
	AgeInDays *int
}

// jsonObject decodes the outermost {...} in output. rcc may print banner
// lines around its JSON reports.
func jsonObject(output string) (map[string]any, bool) {
	start := strings.Index(output, "{")
	end := strings.LastIndex(output, "}")
	if start < 0 || end < start {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(output[start : end+1])))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, false
	}
	return obj, true
}

// parseCatalogDetails reads `holotree catalogs --json`: an object keyed by
// blueprint hash.
func parseCatalogDetails(output string) []catalogDetail {
	obj, ok := jsonObject(output)
	if !ok {
		return nil
	}
	var out []catalogDetail
	for key, raw := range obj {
		row, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		blueprint := stringValue(row["blueprint"])
		if blueprint == "" {
			blueprint = strings.TrimSpace(key)
		}
		if blueprint == "" {
			continue
		}
		out = append(out, catalogDetail{
			Blueprint: blueprint,
			Bytes:     leadingInt(row["bytes"]),
			AgeInDays: intOrNil(row["age_in_days"]),
		})
	}
	return out
}

// parseSpaceDetails reads `holotree list --json`. Rows without an id are
// skipped.
func parseSpaceDetails(output string) []model.HolotreeSpace {
	obj, ok := jsonObject(output)
	if !ok {
		return nil
	}
	var out []model.HolotreeSpace
	for _, raw := range obj {
		row, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		id := stringValue(row["id"])
		if id == "" {
			continue
		}
		out = append(out, model.HolotreeSpace{
			ID:        id,
			Blueprint: stringValue(row["blueprint"]),
			LastUsed:  stringValue(row["last-used"]),
			IdleDays:  intOrNil(row["idle-days"]),
			UseCount:  int(leadingInt(row["use-count"])),
		})
	}
	return out
}

// parseSettings reads `config settings --json`.
func parseSettings(output string) model.RCCSettings {
	obj, ok := jsonObject(output)
	if !ok {
		return model.RCCSettings{}
	}
	meta, _ := obj["meta"].(map[string]any)
	certs, _ := obj["certificates"].(map[string]any)
	updates, _ := obj["autoupdates"].(map[string]any)

	settings := model.RCCSettings{
		Profile:  stringOrNil(meta["name"]),
		Version:  stringOrNil(meta["version"]),
		IndexURL: stringOrNil(updates["rcc-index"]),
	}
	if v, ok := certs["verify-ssl"].(bool); ok {
		settings.SSLVerify = &v
	}
	switch hosts := obj["diagnostics-hosts"].(type) {
	case nil:
	case []any:
		settings.DiagnosticsHostsCount = len(hosts)
	default:
		settings.DiagnosticsHostsCount = 1
	}
	return settings
}

// countSpaceLines counts spaces in the plain `holotree list` table.
func countSpaceLines(output string) int {
	n := 0
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "Identity") || strings.HasPrefix(trimmed, "--------") {
			continue
		}
		n++
	}
	return n
}

// summarizeDetails folds parsed catalogs and spaces into the status figures.
// Ties for the most used space go to the smallest id.
func summarizeDetails(catalogs []catalogDetail, spaces []model.HolotreeSpace) model.RCCDetails {
	var d model.RCCDetails
	for _, c := range catalogs {
		d.CatalogTotalBytes += c.Bytes
		if c.AgeInDays != nil && (d.NewestCatalogAgeDays == nil || *c.AgeInDays < *d.NewestCatalogAgeDays) {
			age := *c.AgeInDays
			d.NewestCatalogAgeDays = &age
		}
	}

	d.SpaceCount = len(spaces)
	blueprints := make(map[string]struct{})
	for i := range spaces {
		s := spaces[i]
		if s.Blueprint != "" {
			blueprints[s.Blueprint] = struct{}{}
		}
		if d.MostUsedSpace == nil || s.UseCount > d.MostUsedSpace.UseCount ||
			(s.UseCount == d.MostUsedSpace.UseCount && s.ID < d.MostUsedSpace.ID) {
			d.MostUsedSpace = &s
		}
	}
	d.ActiveBlueprints = len(blueprints)
	return d
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

func stringOrNil(v any) *string {
	s := stringValue(v)
	if s == "" {
		return nil
	}
	return &s
}

// intOrNil accepts whole JSON numbers and strings holding only an integer.
func intOrNil(v any) *int {
	var raw string
	switch t := v.(type) {
	case json.Number:
		raw = t.String()
	case string:
		raw = strings.TrimSpace(t)
	default:
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &n
}

// leadingInt returns the first run of digits in v, or 0. rcc reports some
// counters as text such as "12 times".
func leadingInt(v any) int64 {
	m := digitsRe.FindString(stringValue(v))
	if m == "" {
		return 0
	}
	n, err := strconv.ParseInt(m, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
