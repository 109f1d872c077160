// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

/*
Package cel compiles and evaluates CEL conditions over content descriptors.

Routing table candidates may carry a `when` condition deciding whether a
directory applies to a given item. Conditions see the descriptor as a map
named "descriptor" with the keys provider_host, item_id, title, category,
install_type, download_url, file_name, media_type, checksum and size_bytes.

# Basic Usage

	engine := cel.NewEngine()

	cond, err := engine.Compile(`descriptor.install_type == "gnome_shell_extensions"`)
	if err != nil {
	    // handle compilation error
	}

	ok, err := cond.Matches(desc)

# Validation

Use Check to validate a condition without creating a program, for example
while loading configuration:

	if err := engine.Check(`descriptor.category == "font"`); err != nil {
	    // condition is invalid
	}

Compilation errors are a *ConditionError naming the phase that failed and
the positioned issues CEL reported:

	_, err := engine.Compile(`descriptor.category ==`)
	var condErr *cel.ConditionError
	if errors.As(err, &condErr) {
	    fmt.Println(condErr.Phase, condErr.Issues)
	}

Conditions whose result type is known not to be a bool, such as
`"font"` or `1 + 2`, fail in PhaseResult. The router attaches the route and
candidate index with At, so a bad routing table names the entry at fault.

# Limits

Expression length and runtime evaluation cost are bounded. Use
WithMaxExpressionLength and WithCostLimit to adjust them.

# Concurrency

Engine and Condition are safe for concurrent use.
*/
package cel
