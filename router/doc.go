// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

/*
Package router decides where and how content is installed.

A routing Table maps each category to a Route: an ordered list of candidate
directories, an install Strategy and a CollisionPolicy. Items of category
other go to the optional Generic route. Candidates may be restricted with a
CEL condition over the descriptor, which is how install types such as
"kwin_scripts" or "cinnamon_applets" get their own directories:

	categories:
	  extension:
	    strategy: extract-archive
	    collision: overwrite
	    candidates:
	      - dir: $XDG_DATA_HOME/cinnamon/applets
	        when: descriptor.install_type == "cinnamon_applets"
	      - dir: $XDG_DATA_HOME/gnome-shell/extensions

Routing is pure and deterministic. The router never touches the filesystem;
the first eligible candidate becomes the target directory and the remaining
ones are fallbacks the installer tries when it cannot write there. System
directories are only eligible when marked writable.
*/
package router
