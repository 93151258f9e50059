// Package tesseract is the local recognition engine on libtesseract. It
// requires cgo and the tesseract headers and is only compiled with the
// "tesseract" build tag.
package tesseract
