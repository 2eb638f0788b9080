package app

import (
	"io/fs"
	"path/filepath"

	"github.com/zurustar/sf2midi/pkg/fileutil"
)

// SoundFontLocation represents the location of a SoundFont file.
type SoundFontLocation struct {
	// Path is the path to the SoundFont file, relative to FileSystem
	Path string
	// FileSystem is the FileSystem to use for loading (nil for the OS file system)
	FileSystem fileutil.FileSystem
}

// IsEmbedded reports whether the SoundFont comes from the bundled file system.
func (l *SoundFontLocation) IsEmbedded() bool {
	return l.FileSystem != nil && l.FileSystem.IsEmbedded()
}

// DefaultSoundFontName is the default SoundFont filename to search for.
const DefaultSoundFontName = "GeneralUser-GS.sf2"

// embeddedSoundFontDir is the directory searched in the bundled file system.
const embeddedSoundFontDir = "soundfonts"

// findSoundFont searches for a SoundFont file in the following order:
// 1. Explicit path (-soundfont flag or SOUNDFONT)
// 2. Bundled soundfonts directory
// 3. Current directory
// 4. Directory of the MIDI file
//
// Within a directory DefaultSoundFontName is preferred, matched ignoring
// case; otherwise the first .sf2 file by name is used.
//
// Parameters:
//   - bundled: The bundled file system (nil when none)
//   - explicit: The path given by the user, or ""
//   - midiDir: Directory of the MIDI file, or ""
//
// Returns:
//   - *SoundFontLocation: Location of the SoundFont file, or nil if not found
func findSoundFont(bundled fs.FS, explicit, midiDir string) *SoundFontLocation {
	// 1. Explicit path, reported even if missing so the load error names it
	if explicit != "" {
		return &SoundFontLocation{Path: explicit}
	}

	// 2. Bundled soundfonts directory
	if bundled != nil {
		efs := fileutil.NewEmbedFS(bundled, embeddedSoundFontDir)
		if name := pickSoundFont(efs, "."); name != "" {
			return &SoundFontLocation{
				Path:       name, // FileSystemのベースパスが"soundfonts"なので、ファイル名だけ
				FileSystem: efs,
			}
		}
	}

	// 3. Current directory
	if name := pickSoundFont(fileutil.NewRealFS(""), "."); name != "" {
		return &SoundFontLocation{Path: name}
	}

	// 4. Directory of the MIDI file
	if midiDir != "" {
		if name := pickSoundFont(fileutil.NewRealFS(""), midiDir); name != "" {
			return &SoundFontLocation{Path: filepath.Join(midiDir, name)}
		}
	}

	return nil
}

// pickSoundFont returns the SoundFont file name to use in dir, or "".
func pickSoundFont(fsys fileutil.FileSystem, dir string) string {
	if found, err := fsys.FindFile(dir, DefaultSoundFontName); err == nil {
		return filepath.Base(found)
	}
	names, err := fileutil.FindByExt(fsys, dir, ".sf2")
	if err != nil || len(names) == 0 {
		return ""
	}
	return names[0]
}
