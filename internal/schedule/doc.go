// Package schedule owns the bell schedule document: the configured bell
// entries plus the weekend-suppression flag.
//
// A Store guards the document with a single mutex. Every mutating operation
// bumps the store revision, which consumers compare against the revision
// they last built from to detect changes. Saves are serialised and atomic
// (temp file + rename); a failed save never touches the in-memory document.
package schedule
