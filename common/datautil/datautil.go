// Copyright 2024 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package datautil

import (
	"archive/zip"
	"context"
	"io"
	"net/http"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/gorse-io/neighbor/base/log"
	"github.com/juju/errors"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

// DefaultDir returns the directory where downloaded datasets are kept.
func DefaultDir() string {
	usr, err := user.Current()
	if err != nil {
		log.Logger().Warn("failed to get user directory", zap.Error(err))
		return filepath.Join(os.TempDir(), "gorse-neighbor", "dataset")
	}
	return filepath.Join(usr.HomeDir, ".gorse", "dataset")
}

// DownloadAndUnzip downloads a zip archive and extracts it into dir. It returns the
// path of the extracted dataset dir/name. The download is skipped if the path exists.
// The archive is extracted into a temporary directory first, so dir/name only appears
// after a complete extraction.
func DownloadAndUnzip(ctx context.Context, url, dir, name string) (string, error) {
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err == nil {
		log.Logger().Info("dataset already extracted", zap.String("path", path))
		return path, nil
	} else if !os.IsNotExist(err) {
		return "", errors.Trace(err)
	}
	zipFileName, err := downloadFromUrl(ctx, url, filepath.Join(dir, ".download"))
	defer os.Remove(zipFileName)
	if err != nil {
		return "", errors.Trace(err)
	}
	tempDir, err := os.MkdirTemp(dir, ".extract-")
	if err != nil {
		return "", errors.Trace(err)
	}
	defer os.RemoveAll(tempDir)
	if _, err = unzip(zipFileName, tempDir); err != nil {
		return "", errors.Trace(err)
	}
	if _, err = os.Stat(filepath.Join(tempDir, name)); err != nil {
		return "", errors.Annotatef(err, "archive %s does not contain %s", url, name)
	}
	if err = os.Rename(filepath.Join(tempDir, name), path); err != nil {
		return "", errors.Trace(err)
	}
	return path, nil
}

// downloadFromUrl downloads file from URL.
func downloadFromUrl(ctx context.Context, src, dst string) (string, error) {
	log.Logger().Info("download dataset", zap.String("source", src), zap.String("destination", dst))
	// Extract file name
	tokens := strings.Split(src, "/")
	fileName := filepath.Join(dst, tokens[len(tokens)-1])
	// Create file
	if err := os.MkdirAll(filepath.Dir(fileName), os.ModePerm); err != nil {
		return fileName, errors.Trace(err)
	}
	output, err := os.Create(fileName)
	if err != nil {
		log.Logger().Error("failed to create file", zap.Error(err), zap.String("filename", fileName))
		return fileName, errors.Trace(err)
	}
	defer output.Close()
	// Download file
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return fileName, errors.Trace(err)
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		log.Logger().Error("failed to download", zap.Error(err), zap.String("source", src))
		return fileName, errors.Trace(err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return fileName, errors.Errorf("failed to download %s: %s", src, response.Status)
	}
	// Save file
	bar := progressbar.DefaultBytes(response.ContentLength, "downloading")
	defer bar.Close()
	if _, err = io.Copy(io.MultiWriter(output, bar), response.Body); err != nil {
		log.Logger().Error("failed to download", zap.Error(err), zap.String("source", src))
		return fileName, errors.Trace(err)
	}
	return fileName, nil
}

// unzip zip file.
func unzip(src, dst string) ([]string, error) {
	var fileNames []string
	// Open zip file
	r, err := zip.OpenReader(src)
	if err != nil {
		return fileNames, errors.Trace(err)
	}
	defer r.Close()
	// Extract files
	for _, f := range r.File {
		// Store filename/path for returning and using later on
		filePath := filepath.Join(dst, f.Name)
		// Check for ZipSlip. More Info: http://bit.ly/2MsjAWE
		if !strings.HasPrefix(filePath, filepath.Clean(dst)+string(os.PathSeparator)) {
			return fileNames, errors.NotValidf("%s: illegal file path", filePath)
		}
		fileNames = append(fileNames, filePath)
		if f.FileInfo().IsDir() {
			if err = os.MkdirAll(filePath, os.ModePerm); err != nil {
				return fileNames, errors.Trace(err)
			}
			continue
		}
		if err = os.MkdirAll(filepath.Dir(filePath), os.ModePerm); err != nil {
			return fileNames, errors.Trace(err)
		}
		if err = extract(f, filePath); err != nil {
			return fileNames, errors.Trace(err)
		}
	}
	return fileNames, nil
}

func extract(f *zip.File, filePath string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	outFile, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode()|0o600)
	if err != nil {
		return err
	}
	if _, err = io.Copy(outFile, rc); err != nil {
		outFile.Close()
		return err
	}
	return outFile.Close()
}
