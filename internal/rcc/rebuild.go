package rcc

import (
	"fmt"
	"strings"
)

// shellQuote wraps s in single quotes for /bin/sh.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func rebuildScript(rccBinary, robotsPath, zipPath string) string {
	return fmt.Sprintf(`RCC=%s
HOLOLIB_ZIP_PATH_INT=%s
ROBOTS_PATH=%s

echo "=== Rebuilding catalogs from robot definitions ==="
mkdir -p "$HOLOLIB_ZIP_PATH_INT"

find "$ROBOTS_PATH" -type f -name "robot.yaml" | while read -r robot_yaml; do
  robot=$(dirname "$robot_yaml")
  robot_name=$(basename "$robot")
  echo "Processing robot: $robot_name"

  if [ -f "$robot/conda.yaml" ]; then
    saved_env=""
    if [ -f "$robot/.env" ]; then
      saved_env=$(mktemp)
      export -p >"$saved_env"
      set -a
      . "$robot/.env"
      set +a
    fi

    "$RCC" ht vars -r "$robot_yaml"
    "$RCC" ht export -r "$robot_yaml" -z "$HOLOLIB_ZIP_PATH_INT/$robot_name.zip"
    "$RCC" holotree import "$HOLOLIB_ZIP_PATH_INT/$robot_name.zip"

    if [ -n "$saved_env" ] && [ -f "$saved_env" ]; then
      unset ROBOCORP_HOME
      . "$saved_env" && rm "$saved_env"
    fi

    echo "Catalog built for $robot_name"
  else
    echo "Skipping $robot_name: conda.yaml not found"
  fi
done

echo "=== Catalog rebuild complete ==="
"$RCC" ht catalogs
`, shellQuote(rccBinary), shellQuote(zipPath), shellQuote(robotsPath))
}
