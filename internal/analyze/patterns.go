package analyze

import "regexp"

// category is one family of content patterns. The multiplier weighs the
// match count into the risk score; the severity label is derived from
// it (>= 2.5 HIGH, >= 1.5 MEDIUM, else LOW).
type category struct {
	name           string
	multiplier     float64
	patterns       []*regexp.Regexp
	description    string
	recommendation string
}

// categories are scanned in this fixed order so identical inputs always
// produce identical verdicts.
var categories = []category{
	{
		name:       "command_injection",
		multiplier: 3.0,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`os\.system\(`),
			regexp.MustCompile(`subprocess\.(call|Popen|run|getoutput)\(`),
			regexp.MustCompile(`\b(system|popen)\s*\(`),
			regexp.MustCompile(`\bexec\s*\(`),
			regexp.MustCompile(`\beval\s*\(`),
			regexp.MustCompile(`shell\s*=\s*True`),
			regexp.MustCompile(`commands\.getoutput\(`),
		},
		description: "Code paths that hand input to a shell or evaluator",
		recommendation: "Replace shell/eval calls with argument-vector execution and " +
			"validate all input before execution.",
	},
	{
		name:       "hardcoded_credentials",
		multiplier: 2.0,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)password\s*=\s*["'][^"']+["']`),
			regexp.MustCompile(`(?i)secret[\w_]*\s*=\s*["'][^"']+["']`),
			regexp.MustCompile(`(?i)api[_-]?key\s*=\s*["'][^"']+["']`),
			regexp.MustCompile(`(?i)token\s*=\s*["'][^"']+["']`),
			regexp.MustCompile(`(?i)credentials\s*=\s*["'][^"']+["']`),
			regexp.MustCompile(`(?i)auth[\w_]*\s*=\s*["'][^"']+["']`),
			regexp.MustCompile(`\bsk-[a-zA-Z0-9\-_]{20,}\b`),
			regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
			regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9\-_.]{20,}`),
		},
		description: "Secrets or credential values embedded in the file",
		recommendation: "Move sensitive values to environment variables or a secrets " +
			"manager and rotate anything already committed.",
	},
	{
		name:       "unsafe_network",
		multiplier: 1.5,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`socket\.socket\(`),
			regexp.MustCompile(`bind\(["']0\.0\.0\.0["']`),
			regexp.MustCompile(`\blisten\s*\(`),
			regexp.MustCompile(`requests\.`),
			regexp.MustCompile(`urllib\.`),
			regexp.MustCompile(`(?i)\bftp://`),
			regexp.MustCompile(`(?i)\btelnet\b`),
		},
		description: "Network operations with weak or absent transport controls",
		recommendation: "Use authenticated, encrypted protocols and avoid binding " +
			"listeners to 0.0.0.0 unless required.",
	},
	{
		name:       "file_operations",
		multiplier: 0.8,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`open\([^)]+,\s*["']w["']`),
			regexp.MustCompile(`\.write\(`),
			regexp.MustCompile(`writelines\(`),
			regexp.MustCompile(`shutil\.(copy|move|rmtree)`),
			regexp.MustCompile(`os\.(remove|unlink|rmdir)`),
		},
		description: "Destructive or mutating filesystem operations",
		recommendation: "Verify target paths are sanitized and file permissions are " +
			"restrictive before writing or deleting.",
	},
	{
		name:       "crypto_concerns",
		multiplier: 1.2,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bmd5\b`),
			regexp.MustCompile(`(?i)\bsha1\b`),
			regexp.MustCompile(`hashlib\.(md5|sha1)`),
			regexp.MustCompile(`random\.`),
			regexp.MustCompile(`(?i)\b(des|rc4)\b`),
		},
		description: "Weak or deprecated cryptographic primitives",
		recommendation: "Avoid MD5/SHA1 and non-CSPRNG randomness; use SHA-256 or " +
			"better with proper key management.",
	},
	{
		name:       "malware_indicators",
		multiplier: 3.0,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`rm\s+-rf\s+/`),
			regexp.MustCompile(`(?i)your\s+files\s+have\s+been\s+encrypted`),
			regexp.MustCompile(`(?i)\bransom`),
			regexp.MustCompile(`(?i)vssadmin\s+delete\s+shadows`),
			regexp.MustCompile(`(?i)\b(wannacry|wncry|cryptolocker|cerber)\b`),
			regexp.MustCompile(`(?i)keylog`),
			regexp.MustCompile(`(?i)DisableTaskMgr`),
		},
		description: "Strings characteristic of ransomware or destructive malware",
		recommendation: "Quarantine the file, scan the host, and investigate how it " +
			"arrived before any further action.",
	},
	{
		name:       "code_obfuscation",
		multiplier: 2.5,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)eval\s*\(\s*atob\s*\(`),
			regexp.MustCompile(`String\.fromCharCode\s*\(`),
			regexp.MustCompile(`(?i)gzinflate\s*\(\s*base64_decode\s*\(`),
			regexp.MustCompile(`chr\(\d+\)\s*\+\s*chr\(\d+\)`),
			regexp.MustCompile(`(\\x[0-9a-fA-F]{2}){8,}`),
			regexp.MustCompile(`(?i)-enc(odedcommand)?\s+[A-Za-z0-9+/]{16,}`),
			regexp.MustCompile(`[A-Za-z0-9+/]{120,}={0,2}`),
		},
		description: "Encoded or obfuscated payloads hiding executable content",
		recommendation: "Decode and review the hidden payload in an isolated " +
			"environment; obfuscation in stored files is rarely benign.",
	},
}

// severityFor derives the finding label from a category multiplier.
func severityFor(multiplier float64) string {
	switch {
	case multiplier >= 2.5:
		return "HIGH"
	case multiplier >= 1.5:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// Extension sets. Lookup keys are lower-cased with the leading dot.
var (
	malwareExtensions = map[string]bool{
		".ransomware": true, ".locked": true, ".encrypted": true,
		".crypt": true, ".crypted": true, ".wncry": true, ".wcry": true,
		".cerber": true, ".locky": true, ".r5a": true, ".aaa": true,
		".abc": true,
	}
	executableExtensions = map[string]bool{
		".exe": true, ".dll": true, ".sys": true, ".com": true,
		".bat": true, ".cmd": true, ".ps1": true, ".vbs": true,
		".js": true, ".jar": true, ".msi": true, ".bin": true,
		".scr": true,
	}
	scriptExtensions = map[string]bool{
		".py": true, ".rb": true, ".sh": true, ".php": true,
		".pl": true, ".asp": true, ".aspx": true, ".jsp": true,
		".cgi": true, ".htaccess": true,
	}
	mediaExtensions = map[string]bool{
		".mp4": true, ".mov": true, ".avi": true, ".mkv": true,
	}
)
