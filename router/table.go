// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"

	"github.com/stacklok/ocs-custodian/content"
)

// TableVersion is the version of the routing table format.
const TableVersion = 1

// Strategy is how an artifact is materialized in its directory.
type Strategy string

// Install strategies.
const (
	// StrategyCopyFile places the artifact as a single file.
	StrategyCopyFile Strategy = "copy-file"
	// StrategyExtractArchive unpacks the artifact into a directory named
	// after the item.
	StrategyExtractArchive Strategy = "extract-archive"
	// StrategyRunScript places the artifact as an executable file. It is
	// never executed.
	StrategyRunScript Strategy = "run-script"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyCopyFile, StrategyExtractArchive, StrategyRunScript:
		return true
	}
	return false
}

// CollisionPolicy decides what happens when the item is already installed or
// its install path is taken.
type CollisionPolicy string

// Collision policies.
const (
	CollisionOverwrite CollisionPolicy = "overwrite"
	CollisionRename    CollisionPolicy = "rename"
	CollisionAbort     CollisionPolicy = "abort"
)

// Valid reports whether p is a known policy.
func (p CollisionPolicy) Valid() bool {
	switch p {
	case CollisionOverwrite, CollisionRename, CollisionAbort:
		return true
	}
	return false
}

// Candidate is one directory an item may be installed into.
type Candidate struct {
	// Dir may reference $HOME, $XDG_DATA_HOME, $XDG_CONFIG_HOME, $APP_DATA
	// and $KDEHOME, or start with "~/".
	Dir string `yaml:"dir" json:"dir"`
	// System marks directories shared by all users. They are skipped
	// unless Writable is also set.
	System   bool `yaml:"system,omitempty" json:"system,omitempty"`
	Writable bool `yaml:"writable,omitempty" json:"writable,omitempty"`
	// When is an optional CEL condition over the descriptor.
	When string `yaml:"when,omitempty" json:"when,omitempty"`
}

// Route is the routing rule for one category.
type Route struct {
	Candidates []Candidate     `yaml:"candidates" json:"candidates"`
	Strategy   Strategy        `yaml:"strategy" json:"strategy"`
	Collision  CollisionPolicy `yaml:"collision" json:"collision"`
}

// Table maps categories to routes. Routing behavior is data: it changes by
// editing the table, not the code.
type Table struct {
	Version int                         `yaml:"version" json:"version"`
	Routes  map[content.Category]*Route `yaml:"categories" json:"categories"`
	// Generic receives items of category other. Without it such items are
	// rejected.
	Generic *Route `yaml:"generic,omitempty" json:"generic,omitempty"`
}

// Merge returns a copy of t with the routes of override replacing those of
// the same category.
func (t *Table) Merge(override *Table) *Table {
	out := &Table{Version: t.Version, Routes: make(map[content.Category]*Route, len(t.Routes)), Generic: t.Generic}
	for c, r := range t.Routes {
		out.Routes[c] = r
	}
	if override == nil {
		return out
	}
	for c, r := range override.Routes {
		out.Routes[c] = r
	}
	if override.Generic != nil {
		out.Generic = override.Generic
	}
	return out
}

// Dirs holds the base directories routing tables may reference.
type Dirs struct {
	Home       string
	DataHome   string
	ConfigHome string
	AppData    string
	KDEHome    string
}

// DefaultDirs returns the XDG base directories of the current user.
func DefaultDirs() Dirs {
	return Dirs{
		Home:       xdg.Home,
		DataHome:   xdg.DataHome,
		ConfigHome: xdg.ConfigHome,
		AppData:    filepath.Join(xdg.DataHome, "ocs-custodian"),
		KDEHome:    filepath.Join(xdg.Home, ".kde"),
	}
}

// Expand substitutes directory variables in dir and returns a clean,
// absolute path.
func (d Dirs) Expand(dir string) (string, error) {
	if rest, ok := strings.CutPrefix(dir, "~/"); ok {
		dir = "$HOME/" + rest
	}

	var unknown []string
	expanded := os.Expand(dir, func(name string) string {
		switch name {
		case "HOME":
			return d.Home
		case "XDG_DATA_HOME":
			return d.DataHome
		case "XDG_CONFIG_HOME":
			return d.ConfigHome
		case "APP_DATA":
			return d.AppData
		case "KDEHOME":
			return d.KDEHome
		}
		unknown = append(unknown, name)
		return ""
	})
	if len(unknown) > 0 {
		return "", fmt.Errorf("directory %q references unknown variable %s", dir, strings.Join(unknown, ", "))
	}
	if !filepath.IsAbs(expanded) {
		return "", fmt.Errorf("directory %q does not expand to an absolute path", dir)
	}
	return filepath.Clean(expanded), nil
}

// installTypeCondition matches descriptors with one of the given install types.
func installTypeCondition(types ...content.InstallType) string {
	quoted := make([]string, len(types))
	for i, t := range types {
		quoted[i] = fmt.Sprintf("%q", t)
	}
	return fmt.Sprintf("descriptor.install_type in [%s]", strings.Join(quoted, ", "))
}

// specialized builds candidates where some install types have a dedicated
// directory and everything else lands in the fallback directories.
func specialized(dedicated map[content.InstallType]string, order []content.InstallType, fallback ...Candidate) []Candidate {
	out := make([]Candidate, 0, len(order)+len(fallback))
	for _, t := range order {
		out = append(out, Candidate{Dir: dedicated[t], When: installTypeCondition(t)})
	}
	others := "!(" + installTypeCondition(order...) + ")"
	for _, c := range fallback {
		if c.When == "" {
			c.When = others
		} else {
			c.When = others + " && (" + c.When + ")"
		}
		out = append(out, c)
	}
	return out
}

// DefaultTable returns the built-in routing table. Directories follow the
// freedesktop.org conventions the desktop environments look in.
func DefaultTable() *Table {
	themeOrder := []content.InstallType{
		content.InstallTypeCairoClockThemes,
		content.InstallTypeEmeraldThemes,
		content.InstallTypeEnlightenmentThemes,
		content.InstallTypeFluxboxStyles,
		content.InstallTypeIcewmThemes,
		content.InstallTypePekwmThemes,
		content.InstallTypeAuroraeThemes,
		content.InstallTypeDekoratorThemes,
		content.InstallTypePlasmaDesktopthemes,
		content.InstallTypePlasmaLookAndFeel,
		content.InstallTypeQtcurve,
		content.InstallTypeYakuakeSkins,
		content.InstallTypeEmoticons,
	}
	themeDirs := map[content.InstallType]string{
		content.InstallTypeCairoClockThemes:    "$HOME/.cairo-clock/themes",
		content.InstallTypeEmeraldThemes:       "$HOME/.emerald/themes",
		content.InstallTypeEnlightenmentThemes: "$HOME/.e/e/themes",
		content.InstallTypeFluxboxStyles:       "$HOME/.fluxbox/styles",
		content.InstallTypeIcewmThemes:         "$HOME/.icewm/themes",
		content.InstallTypePekwmThemes:         "$HOME/.pekwm/themes",
		content.InstallTypeAuroraeThemes:       "$XDG_DATA_HOME/aurorae/themes",
		content.InstallTypeDekoratorThemes:     "$XDG_DATA_HOME/deKorator/themes",
		content.InstallTypePlasmaDesktopthemes: "$XDG_DATA_HOME/plasma/desktoptheme",
		content.InstallTypePlasmaLookAndFeel:   "$XDG_DATA_HOME/plasma/look-and-feel",
		content.InstallTypeQtcurve:             "$XDG_DATA_HOME/QtCurve",
		content.InstallTypeYakuakeSkins:        "$KDEHOME/share/apps/yakuake/skins",
		content.InstallTypeEmoticons:           "$XDG_DATA_HOME/emoticons",
	}

	extensionOrder := []content.InstallType{
		content.InstallTypeCinnamonApplets,
		content.InstallTypeCinnamonDesklets,
		content.InstallTypeCinnamonExtensions,
		content.InstallTypeKwinEffects,
		content.InstallTypeKwinScripts,
		content.InstallTypeKwinTabbox,
	}
	extensionDirs := map[content.InstallType]string{
		content.InstallTypeCinnamonApplets:    "$XDG_DATA_HOME/cinnamon/applets",
		content.InstallTypeCinnamonDesklets:   "$XDG_DATA_HOME/cinnamon/desklets",
		content.InstallTypeCinnamonExtensions: "$XDG_DATA_HOME/cinnamon/extensions",
		content.InstallTypeKwinEffects:        "$XDG_DATA_HOME/kwin/effects",
		content.InstallTypeKwinScripts:        "$XDG_DATA_HOME/kwin/scripts",
		content.InstallTypeKwinTabbox:         "$XDG_DATA_HOME/kwin/tabbox",
	}

	scriptOrder := []content.InstallType{
		content.InstallTypeNautilusScripts,
		content.InstallTypeAmarokScripts,
	}
	scriptDirs := map[content.InstallType]string{
		content.InstallTypeNautilusScripts: "$XDG_DATA_HOME/nautilus/scripts",
		content.InstallTypeAmarokScripts:   "$KDEHOME/share/apps/amarok/scripts",
	}

	genericOrder := []content.InstallType{
		content.InstallTypeBooks,
		content.InstallTypeComics,
		content.InstallTypeDocuments,
		content.InstallTypeDownloads,
		content.InstallTypeMusic,
		content.InstallTypePictures,
		content.InstallTypeVideos,
	}
	genericDirs := map[content.InstallType]string{
		content.InstallTypeBooks:     "$APP_DATA/books",
		content.InstallTypeComics:    "$APP_DATA/comics",
		content.InstallTypeDocuments: "$HOME/Documents",
		content.InstallTypeDownloads: "$HOME/Downloads",
		content.InstallTypeMusic:     "$HOME/Music",
		content.InstallTypePictures:  "$HOME/Pictures",
		content.InstallTypeVideos:    "$HOME/Videos",
	}
	generic := make([]Candidate, 0, len(genericOrder))
	for _, t := range genericOrder {
		generic = append(generic, Candidate{Dir: genericDirs[t], When: installTypeCondition(t)})
	}

	return &Table{
		Version: TableVersion,
		Routes: map[content.Category]*Route{
			content.CategoryIconTheme: {
				Candidates: []Candidate{
					{Dir: "$XDG_DATA_HOME/icons"},
					{Dir: "$HOME/.icons"},
					{Dir: "/usr/share/icons", System: true},
				},
				Strategy:  StrategyExtractArchive,
				Collision: CollisionRename,
			},
			content.CategoryCursorTheme: {
				Candidates: []Candidate{
					{Dir: "$HOME/.icons"},
					{Dir: "$XDG_DATA_HOME/icons"},
					{Dir: "/usr/share/icons", System: true},
				},
				Strategy:  StrategyExtractArchive,
				Collision: CollisionRename,
			},
			content.CategorySoundTheme: {
				Candidates: []Candidate{
					{Dir: "$XDG_DATA_HOME/sounds"},
					{Dir: "/usr/share/sounds", System: true},
				},
				Strategy:  StrategyExtractArchive,
				Collision: CollisionRename,
			},
			content.CategoryTheme: {
				Candidates: specialized(themeDirs, themeOrder,
					Candidate{Dir: "$HOME/.themes"},
					Candidate{Dir: "$XDG_DATA_HOME/themes"},
				),
				Strategy:  StrategyExtractArchive,
				Collision: CollisionRename,
			},
			content.CategoryWallpaper: {
				Candidates: specialized(
					map[content.InstallType]string{content.InstallTypeEnlightenmentBackgrounds: "$HOME/.e/e/backgrounds"},
					[]content.InstallType{content.InstallTypeEnlightenmentBackgrounds},
					Candidate{Dir: "$XDG_DATA_HOME/wallpapers"},
				),
				Strategy:  StrategyExtractArchive,
				Collision: CollisionRename,
			},
			content.CategoryFont: {
				Candidates: []Candidate{
					{Dir: "$XDG_DATA_HOME/fonts"},
					{Dir: "$HOME/.fonts"},
				},
				Strategy:  StrategyExtractArchive,
				Collision: CollisionRename,
			},
			content.CategoryColorScheme: {
				Candidates: []Candidate{{Dir: "$XDG_DATA_HOME/color-schemes"}},
				Strategy:   StrategyCopyFile,
				Collision:  CollisionOverwrite,
			},
			content.CategoryScript: {
				Candidates: specialized(scriptDirs, scriptOrder, Candidate{Dir: "$HOME/.local/bin"}),
				Strategy:   StrategyRunScript,
				Collision:  CollisionOverwrite,
			},
			content.CategoryExtension: {
				Candidates: specialized(extensionDirs, extensionOrder,
					Candidate{Dir: "$XDG_DATA_HOME/gnome-shell/extensions"},
				),
				Strategy:  StrategyExtractArchive,
				Collision: CollisionOverwrite,
			},
			content.CategoryPlasmoid: {
				Candidates: []Candidate{{Dir: "$XDG_DATA_HOME/plasma/plasmoids"}},
				Strategy:   StrategyExtractArchive,
				Collision:  CollisionOverwrite,
			},
		},
		Generic: &Route{
			Candidates: generic,
			Strategy:   StrategyCopyFile,
			Collision:  CollisionRename,
		},
	}
}
