// Package inference - Utility functions.
package inference

import "runtime"

// sharedLibPath returns the ONNX Runtime shared library path for the
// current platform.
func sharedLibPath() string {
	if runtime.GOOS == "windows" {
		if runtime.GOARCH == "amd64" {
			return "./third_party/onnxruntime.dll"
		}
	}
	if runtime.GOOS == "darwin" {
		return "./third_party/libonnxruntime.1.23.0.dylib"
	}
	if runtime.GOOS == "linux" {
		if runtime.GOARCH == "arm64" {
			return "./third_party/onnxruntime_arm64.so"
		}
		return "./third_party/onnxruntime.so"
	}
	panic("unable to find an onnxruntime library for this platform")
}
