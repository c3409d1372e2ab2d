package manifest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/enmassa-dl/enmassa/pkg/errors"
	"github.com/enmassa-dl/enmassa/pkg/types"
)

// csvHeader is the column layout of the links CSV export.
var csvHeader = []string{"Chapter", "Program", "Title", "Name", "Quality", "Link", "File Name", "Type"}

// WriteJSON serializes the manifest to path. The file is written to a
// temporary sibling and renamed into place, so a crash mid-write never
// leaves a truncated manifest where the download phase would read it.
func WriteJSON(manifest *types.Manifest, path string) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.CodeUnknown, "encoding manifest")
	}

	return atomicWrite(path, data)
}

// ReadJSON loads a previously written manifest.
func ReadJSON(path string) (*types.Manifest, error) {
	data, err := os.ReadFile(path) // #nosec G304 - caller-controlled artifact path
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeFilesystem, "reading manifest")
	}

	var manifest types.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, errors.Wrap(err, errors.CodeMalformedMetadata, "decoding manifest")
	}

	return &manifest, nil
}

// WriteCSV exports the manifest as a flat links table.
func WriteCSV(manifest *types.Manifest, path string) error {
	file, err := os.Create(path) // #nosec G304 - caller-controlled artifact path
	if err != nil {
		return errors.Wrap(err, errors.CodeFilesystem, "creating links CSV")
	}

	writer := csv.NewWriter(file)

	if err := writer.Write(csvHeader); err != nil {
		_ = file.Close()
		return errors.Wrap(err, errors.CodeFilesystem, "writing links CSV header")
	}

	for _, asset := range manifest.Items {
		row := []string{
			strconv.FormatInt(asset.ChapterID, 10),
			asset.ProgramName,
			asset.Title,
			fmt.Sprintf("S%02dE%02d", asset.Season, asset.Episode),
			asset.Label,
			asset.SourceURL,
			asset.FileName,
			string(asset.Kind),
		}

		if err := writer.Write(row); err != nil {
			_ = file.Close()
			return errors.Wrap(err, errors.CodeFilesystem, "writing links CSV row")
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		_ = file.Close()
		return errors.Wrap(err, errors.CodeFilesystem, "flushing links CSV")
	}

	if err := file.Close(); err != nil {
		return errors.Wrap(err, errors.CodeFilesystem, "closing links CSV")
	}

	return nil
}

// WriteFailedIDs records the chapter ids that could not be resolved, one
// per line. An empty list removes a stale artifact from a previous run.
func WriteFailedIDs(failed []int64, path string) error {
	if len(failed) == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, errors.CodeFilesystem, "removing stale failed-ids file")
		}
		return nil
	}

	var buf []byte
	for _, id := range failed {
		buf = strconv.AppendInt(buf, id, 10)
		buf = append(buf, '\n')
	}

	return atomicWrite(path, buf)
}

// atomicWrite writes data to a temporary file in the destination directory
// and renames it into place.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return errors.Wrap(err, errors.CodeFilesystem, "creating artifact directory")
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, errors.CodeFilesystem, "creating temporary artifact")
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return errors.Wrap(err, errors.CodeFilesystem, "writing artifact")
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.Wrap(err, errors.CodeFilesystem, "closing artifact")
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.Wrap(err, errors.CodeFilesystem, "finalizing artifact")
	}

	return nil
}
