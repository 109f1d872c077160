// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package content defines the vocabulary shared by every stage of the
// custodian: the closed set of content categories, install type hints,
// checksums and the resolved item Descriptor.
package content
