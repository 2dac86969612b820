// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 oltaco

// Package dfupkg loads Nordic DFU firmware packages: ZIP archives carrying a
// firmware image, its init packet, and usually a manifest.json describing
// them. Packages without a manifest are handled by filename convention.
package dfupkg

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Package is a parsed firmware package ready for transfer.
type Package struct {
	// Name is the base name of the archive the package was loaded from.
	Name string
	// Image is the application firmware binary.
	Image []byte
	// InitData is the init packet (the .dat companion file).
	InitData []byte
}

// ErrNoApplication is returned when the archive carries no application
// firmware, either per its manifest or by filename detection.
var ErrNoApplication = errors.New("no application firmware in package")

// manifest mirrors the manifest.json layout of nrfutil-generated packages.
// Only the application entry matters here; softdevice and bootloader images
// need the dual-bank flow and are not supported.
type manifest struct {
	Manifest struct {
		Application *struct {
			BinFile string `json:"bin_file"`
			DatFile string `json:"dat_file"`
		} `json:"application"`
	} `json:"manifest"`
}

// Load opens and parses a firmware package from disk.
func Load(path string) (*Package, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open package %s: %w", path, err)
	}
	defer r.Close()

	pkg, err := parse(&r.Reader)
	if err != nil {
		return nil, fmt.Errorf("parse package %s: %w", filepath.Base(path), err)
	}
	pkg.Name = filepath.Base(path)
	return pkg, nil
}

// parse extracts the application image and init packet from an opened
// archive. With a manifest.json present the manifest is authoritative;
// without one, members are detected by the conventional
// "*application*.bin" / "*application*.dat" names.
func parse(r *zip.Reader) (*Package, error) {
	if member(r, "manifest.json") != nil {
		return parseManifest(r)
	}
	return parseLegacy(r)
}

func parseManifest(r *zip.Reader) (*Package, error) {
	raw, err := readMember(r, "manifest.json")
	if err != nil {
		return nil, err
	}

	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("manifest.json: %w", err)
	}
	app := m.Manifest.Application
	if app == nil {
		return nil, fmt.Errorf("manifest has no application entry: %w", ErrNoApplication)
	}
	if app.BinFile == "" || app.DatFile == "" {
		return nil, fmt.Errorf("manifest application entry incomplete: %w", ErrNoApplication)
	}

	image, err := readMember(r, app.BinFile)
	if err != nil {
		return nil, err
	}
	initData, err := readMember(r, app.DatFile)
	if err != nil {
		return nil, err
	}
	return &Package{Image: image, InitData: initData}, nil
}

func parseLegacy(r *zip.Reader) (*Package, error) {
	binName := findMember(r, ".bin")
	datName := findMember(r, ".dat")
	if binName == "" || datName == "" {
		return nil, fmt.Errorf("no manifest.json and no application .bin/.dat pair: %w", ErrNoApplication)
	}

	image, err := readMember(r, binName)
	if err != nil {
		return nil, err
	}
	initData, err := readMember(r, datName)
	if err != nil {
		return nil, err
	}
	return &Package{Image: image, InitData: initData}, nil
}

// findMember returns the first member whose name has the given extension and
// contains "application" case-insensitively, or "".
func findMember(r *zip.Reader, ext string) string {
	for _, f := range r.File {
		if strings.HasSuffix(f.Name, ext) && strings.Contains(strings.ToLower(f.Name), "application") {
			return f.Name
		}
	}
	return ""
}

func member(r *zip.Reader, name string) *zip.File {
	for _, f := range r.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func readMember(r *zip.Reader, name string) ([]byte, error) {
	f := member(r, name)
	if f == nil {
		return nil, fmt.Errorf("archive member %q not found", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open member %q: %w", name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read member %q: %w", name, err)
	}
	return data, nil
}
