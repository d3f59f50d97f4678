// Package mkv decodes Matroska/WebM containers: the EBML framing layer
// (VINT identifiers and sizes), the published Matroska element schema,
// and the derived keyframe index used for seeking.
package mkv
