// Package pixel implements the packed pixel images backing acquired framebuffers.
//
// This module provides additional color models, compatible with Go's native [color.Color] and
// [image.Image] / [draw.Image] interfaces. Images can be allocated, or wrap memory owned by a
// display device such as a memory mapped framebuffer.
package pixel
