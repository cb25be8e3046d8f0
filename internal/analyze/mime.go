package analyze

// mimeByExtension is a fixed extension table so MIME detection does not
// depend on host mime databases. Unknown extensions fall back to the
// binary/text decision.
var mimeByExtension = map[string]string{
	".txt":  "text/plain",
	".md":   "text/markdown",
	".csv":  "text/csv",
	".html": "text/html",
	".htm":  "text/html",
	".xml":  "application/xml",
	".json": "application/json",
	".yaml": "application/yaml",
	".yml":  "application/yaml",
	".js":   "text/javascript",
	".py":   "text/x-python",
	".rb":   "text/x-ruby",
	".sh":   "application/x-sh",
	".php":  "application/x-httpd-php",
	".pl":   "application/x-perl",
	".c":    "text/x-c",
	".go":   "text/x-go",
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".zip":  "application/zip",
	".gz":   "application/gzip",
	".tar":  "application/x-tar",
	".7z":   "application/x-7z-compressed",
	".rar":  "application/vnd.rar",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".ico":  "image/vnd.microsoft.icon",
	".svg":  "image/svg+xml",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".mkv":  "video/x-matroska",
	".exe":  "application/x-msdownload",
	".dll":  "application/x-msdownload",
	".msi":  "application/x-msdownload",
	".sys":  "application/x-msdownload",
	".com":  "application/x-msdownload",
	".scr":  "application/x-msdownload",
	".bin":  "application/octet-stream",
	".elf":  "application/x-executable",
	".jar":  "application/java-archive",
}

// executableMIMEs is the executable family checked for binary content.
var executableMIMEs = map[string]bool{
	"application/x-msdownload":                      true,
	"application/x-executable":                      true,
	"application/x-dosexec":                         true,
	"application/x-mach-binary":                     true,
	"application/vnd.microsoft.portable-executable": true,
	"application/java-archive":                      true,
}

// detectMIME resolves a MIME type from the extension table, falling back
// to the binary/text decision for unknown extensions.
func detectMIME(ext string, binary bool) string {
	if m, ok := mimeByExtension[ext]; ok {
		return m
	}
	if binary {
		return "application/octet-stream"
	}
	return "text/plain"
}
