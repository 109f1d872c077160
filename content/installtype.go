// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package content

import "strings"

// InstallType is the destination hint carried by legacy links and provider
// download variants, for example "gnome_shell_extensions". It refines a
// Category: several install types share one category but land in different
// directories.
type InstallType string

// Install types understood by the default routing table.
const (
	InstallTypeBin       InstallType = "bin"
	InstallTypeBooks     InstallType = "books"
	InstallTypeComics    InstallType = "comics"
	InstallTypeDocuments InstallType = "documents"
	InstallTypeDownloads InstallType = "downloads"
	InstallTypeMusic     InstallType = "music"
	InstallTypePictures  InstallType = "pictures"
	InstallTypeVideos    InstallType = "videos"

	InstallTypeWallpapers   InstallType = "wallpapers"
	InstallTypeColorSchemes InstallType = "color_schemes"
	InstallTypeCursors      InstallType = "cursors"
	InstallTypeEmoticons    InstallType = "emoticons"
	InstallTypeFonts        InstallType = "fonts"
	InstallTypeIcons        InstallType = "icons"
	InstallTypeSounds       InstallType = "sounds"
	InstallTypeThemes       InstallType = "themes"

	InstallTypeCairoClockThemes         InstallType = "cairo_clock_themes"
	InstallTypeCinnamonApplets          InstallType = "cinnamon_applets"
	InstallTypeCinnamonDesklets         InstallType = "cinnamon_desklets"
	InstallTypeCinnamonExtensions       InstallType = "cinnamon_extensions"
	InstallTypeEmeraldThemes            InstallType = "emerald_themes"
	InstallTypeEnlightenmentBackgrounds InstallType = "enlightenment_backgrounds"
	InstallTypeEnlightenmentThemes      InstallType = "enlightenment_themes"
	InstallTypeFluxboxStyles            InstallType = "fluxbox_styles"
	InstallTypeGnomeShellExtensions     InstallType = "gnome_shell_extensions"
	InstallTypeIcewmThemes              InstallType = "icewm_themes"
	InstallTypePekwmThemes              InstallType = "pekwm_themes"

	InstallTypeAmarokScripts       InstallType = "amarok_scripts"
	InstallTypeAuroraeThemes       InstallType = "aurorae_themes"
	InstallTypeDekoratorThemes     InstallType = "dekorator_themes"
	InstallTypeKwinEffects         InstallType = "kwin_effects"
	InstallTypeKwinScripts         InstallType = "kwin_scripts"
	InstallTypeKwinTabbox          InstallType = "kwin_tabbox"
	InstallTypePlasmaDesktopthemes InstallType = "plasma_desktopthemes"
	InstallTypePlasmaLookAndFeel   InstallType = "plasma_look_and_feel"
	InstallTypePlasmaPlasmoids     InstallType = "plasma_plasmoids"
	InstallTypeQtcurve             InstallType = "qtcurve"
	InstallTypeYakuakeSkins        InstallType = "yakuake_skins"

	InstallTypeNautilusScripts InstallType = "nautilus_scripts"
)

// installTypeCategories assigns each install type to a category.
var installTypeCategories = map[InstallType]Category{
	InstallTypeBin:       CategoryScript,
	InstallTypeBooks:     CategoryOther,
	InstallTypeComics:    CategoryOther,
	InstallTypeDocuments: CategoryOther,
	InstallTypeDownloads: CategoryOther,
	InstallTypeMusic:     CategoryOther,
	InstallTypePictures:  CategoryOther,
	InstallTypeVideos:    CategoryOther,

	InstallTypeWallpapers:   CategoryWallpaper,
	InstallTypeColorSchemes: CategoryColorScheme,
	InstallTypeCursors:      CategoryCursorTheme,
	InstallTypeEmoticons:    CategoryTheme,
	InstallTypeFonts:        CategoryFont,
	InstallTypeIcons:        CategoryIconTheme,
	InstallTypeSounds:       CategorySoundTheme,
	InstallTypeThemes:       CategoryTheme,

	InstallTypeCairoClockThemes:         CategoryTheme,
	InstallTypeCinnamonApplets:          CategoryExtension,
	InstallTypeCinnamonDesklets:         CategoryExtension,
	InstallTypeCinnamonExtensions:       CategoryExtension,
	InstallTypeEmeraldThemes:            CategoryTheme,
	InstallTypeEnlightenmentBackgrounds: CategoryWallpaper,
	InstallTypeEnlightenmentThemes:      CategoryTheme,
	InstallTypeFluxboxStyles:            CategoryTheme,
	InstallTypeGnomeShellExtensions:     CategoryExtension,
	InstallTypeIcewmThemes:              CategoryTheme,
	InstallTypePekwmThemes:              CategoryTheme,

	InstallTypeAmarokScripts:       CategoryScript,
	InstallTypeAuroraeThemes:       CategoryTheme,
	InstallTypeDekoratorThemes:     CategoryTheme,
	InstallTypeKwinEffects:         CategoryExtension,
	InstallTypeKwinScripts:         CategoryExtension,
	InstallTypeKwinTabbox:          CategoryExtension,
	InstallTypePlasmaDesktopthemes: CategoryTheme,
	InstallTypePlasmaLookAndFeel:   CategoryTheme,
	InstallTypePlasmaPlasmoids:     CategoryPlasmoid,
	InstallTypeQtcurve:             CategoryTheme,
	InstallTypeYakuakeSkins:        CategoryTheme,

	InstallTypeNautilusScripts: CategoryScript,
}

// installTypeAliases are toolkit specific spellings that install like a
// canonical type.
var installTypeAliases = map[string]InstallType{
	"gnome_shell_themes":      InstallTypeThemes,
	"gtk2_themes":             InstallTypeThemes,
	"gtk3_themes":             InstallTypeThemes,
	"metacity_themes":         InstallTypeThemes,
	"xfwm4_themes":            InstallTypeThemes,
	"openbox_themes":          InstallTypeThemes,
	"kvantum_themes":          InstallTypeThemes,
	"compiz_themes":           InstallTypeEmeraldThemes,
	"beryl_themes":            InstallTypeEmeraldThemes,
	"plasma4_plasmoids":       InstallTypePlasmaPlasmoids,
	"plasma5_plasmoids":       InstallTypePlasmaPlasmoids,
	"plasma5_desktopthemes":   InstallTypePlasmaDesktopthemes,
	"plasma5_look_and_feel":   InstallTypePlasmaLookAndFeel,
	"kwin_effects_plasma5":    InstallTypeKwinEffects,
	"kwin_scripts_plasma5":    InstallTypeKwinScripts,
	"kwin_tabbox_plasma5":     InstallTypeKwinTabbox,
	"nautilus_scripts_gnome3": InstallTypeNautilusScripts,
}

// ParseInstallType normalizes an install type hint. Aliases resolve to their
// canonical type; unknown hints are returned lower-cased so they can still be
// matched by routing conditions.
func ParseInstallType(s string) InstallType {
	key := strings.ToLower(strings.TrimSpace(s))
	if it, ok := installTypeAliases[key]; ok {
		return it
	}
	return InstallType(key)
}

// Known reports whether the routing table has a category for t.
func (t InstallType) Known() bool {
	_, ok := installTypeCategories[t]
	return ok
}

// Category returns the category t installs as, or CategoryOther.
func (t InstallType) Category() Category {
	if c, ok := installTypeCategories[t]; ok {
		return c
	}
	return CategoryOther
}
