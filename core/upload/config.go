package upload

import (
	"strings"

	"mixflow/storage"
)

// Config 上传配置
type Config struct {
	MaxFileSize  int64 // per file part
	MaxFiles     int
	MaxFieldSize int64 // per text part
	MaxFields    int
}

// DefaultUploadConfig 返回默认上传配置
func DefaultUploadConfig() Config {
	return Config{
		MaxFileSize:  100 * 1024 * 1024,
		MaxFiles:     2,
		MaxFieldSize: 1 << 20,
		MaxFields:    50,
	}
}

// MaxRequestSize bounds the whole multipart body.
func (c Config) MaxRequestSize() int64 {
	return int64(c.MaxFiles)*c.MaxFileSize + int64(c.MaxFields)*c.MaxFieldSize + 1<<20
}

var audioMIMETypes = map[string]bool{
	"audio/mpeg":     true,
	"audio/wav":      true,
	"audio/x-wav":    true,
	"audio/flac":     true,
	"audio/x-flac":   true,
	"audio/aac":      true,
	"audio/mp4":      true,
	"audio/x-m4a":    true,
	"audio/webm":     true,
	"audio/ogg":      true,
	"video/webm":     true,
	"audio/x-ms-wma": true,
	"audio/vnd.wave": true,
}

var audioExtensions = map[string]bool{
	".mp3": true, ".wav": true, ".flac": true, ".aac": true,
	".m4a": true, ".webm": true, ".ogg": true, ".wma": true,
}

var imageMIMETypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/webp": true,
}

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true,
}

// executableExtensions are refused whatever MIME type the client claims.
var executableExtensions = map[string]bool{
	".exe": true, ".dll": true, ".msi": true, ".com": true, ".scr": true,
	".bat": true, ".cmd": true, ".sh": true, ".ps1": true, ".jar": true,
}

// AcceptAudio accepts a part whose MIME type or extension is known audio.
// Executable extensions never pass.
func AcceptAudio(mimeType, filename string) bool {
	ext := storage.Extension(filename)
	if executableExtensions[ext] {
		return false
	}
	return audioMIMETypes[strings.ToLower(mimeType)] || audioExtensions[ext]
}

// AcceptImage requires both a known image MIME type and extension.
func AcceptImage(mimeType, filename string) bool {
	return imageMIMETypes[strings.ToLower(mimeType)] && imageExtensions[storage.Extension(filename)]
}
