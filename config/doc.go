// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config loads the custodian configuration.
//
// Settings come from built-in defaults, then a YAML file validated against an
// embedded JSON schema, then OCS_CUSTODIAN_* environment variables. The file
// defaults to $XDG_CONFIG_HOME/ocs-custodian/config.yaml and may be absent.
//
//	logLevel: info
//	reinstall: verify
//	providers:
//	  store.example.com:
//	    baseURL: https://api.example.com/ocs/v1
//	    cdnHosts: ["*.examplecdn.net"]
//	routing:
//	  categories:
//	    wallpaper:
//	      candidates:
//	        - dir: $HOME/Pictures/Wallpapers
//	      strategy: copy-file
//	      collision: rename
package config
