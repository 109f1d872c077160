// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package content

import (
	"slices"
	"strings"
)

// CategorySetVersion is bumped whenever a category is added to the closed set.
const CategorySetVersion = 1

// Category is a kind of desktop content. The set is closed; anything the
// custodian does not recognize is CategoryOther.
type Category string

// Known categories.
const (
	CategoryIconTheme   Category = "icon-theme"
	CategoryCursorTheme Category = "cursor-theme"
	CategorySoundTheme  Category = "sound-theme"
	CategoryTheme       Category = "theme"
	CategoryWallpaper   Category = "wallpaper"
	CategoryFont        Category = "font"
	CategoryColorScheme Category = "color-scheme"
	CategoryScript      Category = "script"
	CategoryExtension   Category = "extension"
	CategoryPlasmoid    Category = "plasmoid"
	CategoryOther       Category = "other"
)

var knownCategories = []Category{
	CategoryIconTheme,
	CategoryCursorTheme,
	CategorySoundTheme,
	CategoryTheme,
	CategoryWallpaper,
	CategoryFont,
	CategoryColorScheme,
	CategoryScript,
	CategoryExtension,
	CategoryPlasmoid,
}

// categoryAliases maps normalized spellings seen in links and provider type
// names onto categories.
var categoryAliases = map[string]Category{
	"icons":              CategoryIconTheme,
	"icon":               CategoryIconTheme,
	"icon-themes":        CategoryIconTheme,
	"full-icon-themes":   CategoryIconTheme,
	"cursors":            CategoryCursorTheme,
	"cursor":             CategoryCursorTheme,
	"x11-mouse-themes":   CategoryCursorTheme,
	"cursor-themes":      CategoryCursorTheme,
	"sounds":             CategorySoundTheme,
	"sound-themes":       CategorySoundTheme,
	"themes":             CategoryTheme,
	"gtk-themes":         CategoryTheme,
	"gtk3-themes":        CategoryTheme,
	"gtk2-themes":        CategoryTheme,
	"plasma-themes":      CategoryTheme,
	"wallpapers":         CategoryWallpaper,
	"backgrounds":        CategoryWallpaper,
	"fonts":              CategoryFont,
	"color-schemes":      CategoryColorScheme,
	"colour-scheme":      CategoryColorScheme,
	"scripts":            CategoryScript,
	"extensions":         CategoryExtension,
	"gnome-extensions":   CategoryExtension,
	"plasmoids":          CategoryPlasmoid,
	"plasma-5-applets":   CategoryPlasmoid,
	"plasma-widgets":     CategoryPlasmoid,
	"plasma-applets":     CategoryPlasmoid,
	"kde-plasma-widgets": CategoryPlasmoid,
}

// Categories returns the known categories, excluding CategoryOther.
func Categories() []Category {
	return slices.Clone(knownCategories)
}

// Known reports whether c is part of the closed set and not CategoryOther.
func (c Category) Known() bool {
	return slices.Contains(knownCategories, c)
}

// ParseCategory maps a category label onto the closed set. Matching ignores
// case, surrounding whitespace and the choice of space, underscore or hyphen
// as separator. Unrecognized labels yield CategoryOther.
func ParseCategory(s string) Category {
	key := normalizeLabel(s)
	if c := Category(key); c.Known() {
		return c
	}
	if c, ok := categoryAliases[key]; ok {
		return c
	}
	return CategoryOther
}

// CategoryFromTypeName derives a category from a provider's free-form type
// name such as "Full Icon Themes" or "GTK3 Themes".
func CategoryFromTypeName(typeName string) Category {
	if c := ParseCategory(typeName); c != CategoryOther {
		return c
	}
	key := normalizeLabel(typeName)
	switch {
	case strings.Contains(key, "cursor"), strings.Contains(key, "mouse"):
		return CategoryCursorTheme
	case strings.Contains(key, "icon"):
		return CategoryIconTheme
	case strings.Contains(key, "sound"):
		return CategorySoundTheme
	case strings.Contains(key, "wallpaper"), strings.Contains(key, "background"):
		return CategoryWallpaper
	case strings.Contains(key, "font"):
		return CategoryFont
	case strings.Contains(key, "color-scheme"), strings.Contains(key, "colour-scheme"):
		return CategoryColorScheme
	case strings.Contains(key, "plasmoid"), strings.Contains(key, "widget"), strings.Contains(key, "applet"):
		return CategoryPlasmoid
	case strings.Contains(key, "extension"):
		return CategoryExtension
	case strings.Contains(key, "script"):
		return CategoryScript
	case strings.Contains(key, "theme"):
		return CategoryTheme
	}
	return CategoryOther
}

func normalizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '_' || r == '-' || r == '/'
	}), "-")
}
