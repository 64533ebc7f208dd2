// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

// Package bootimage loads the boot image a session uploads.
//
// Images may be stored raw or as a zstd or LZ4 frame. [Load] detects the
// compression from the frame magic, inflates the image, and computes the
// BLAKE3-256 digest of the inflated bytes that BeginUpload announces.
// The daemon always receives the inflated image.
package bootimage
