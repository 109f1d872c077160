// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

/*
Package env abstracts environment variable access so that configuration can
be injected in tests.

# Basic Usage

Custodian settings are read from variables carrying the OCS_CUSTODIAN_
prefix:

	reader := &env.OSReader{}
	if level, ok := env.Lookup(reader, "log_level"); ok {
		// OCS_CUSTODIAN_LOG_LEVEL is set
	}

# Testing

Production code accepts an env.Reader. Tests pass a MapReader or the
generated mock from the mocks sub-package:

	ctrl := gomock.NewController(t)
	mock := mocks.NewMockReader(ctrl)
	mock.EXPECT().Getenv("OCS_CUSTODIAN_LOG_LEVEL").Return("debug")
*/
package env
