// Package cliutil carries the small pieces cmd/octiler needs that don't
// belong in any domain package: run-log rotation and the input-file
// discovery the teacher's tools.FileFinder performs.
package cliutil

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ConfigureFileLogging redirects the standard "log" package (the CLI's own
// banner/summary output, kept separate from glog's per-node Info logs)
// to a size- and age-rotated file, the way the teacher's dvid-derived
// LogConfig.SetLogger wires lumberjack.Logger in as log's output. An
// empty path leaves log's output unchanged (stderr unless redirected).
func ConfigureFileLogging(path string, maxSizeMB, maxAgeDays int) *lumberjack.Logger {
	if path == "" {
		return nil
	}
	l := &lumberjack.Logger{
		Filename: path,
		MaxSize:  maxSizeMB,
		MaxAge:   maxAgeDays,
	}
	log.SetOutput(l)
	return l
}

// DiscoverInputFiles resolves a -input flag into a concrete file list: the
// path itself if it names a file, or every file under it matching ext
// (case-insensitive) if it names a directory, descending into
// subdirectories only when recursive is set. Grounded on the teacher's
// StandardFileFinder.GetLasFilesToProcess.
func DiscoverInputFiles(input, ext string, recursive bool) ([]string, error) {
	info, err := os.Stat(input)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{input}, nil
	}

	var files []string
	err = filepath.Walk(input, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			if !recursive && path != input {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(fi.Name()), ext) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
