package repoingest

// supportedExtensions is the fixed allow-list of indexable file extensions —
// every mainstream language plus the legacy/enterprise families (VB6,
// Pascal/Delphi, COBOL, Fortran, Ada...) original_source's github_client
// carries. Extensions outside this set are never ingested, regardless of
// config.RepoIngestConfig.ExcludeExts, which only layers supplementary
// exclusions on top of this list.
var supportedExtensions = map[string]bool{
	".py": true, ".pyw": true, ".pyi": true,
	".js": true, ".jsx": true, ".ts": true, ".tsx": true, ".mjs": true, ".cjs": true, ".mts": true, ".cts": true,
	".java": true, ".kt": true, ".kts": true, ".scala": true, ".groovy": true,
	".c": true, ".cpp": true, ".cc": true, ".cxx": true, ".h": true, ".hpp": true, ".hh": true, ".hxx": true,
	".cs": true, ".csx": true,
	".go": true,
	".rs": true,
	".rb": true, ".erb": true, ".rake": true,
	".php": true, ".phtml": true,
	".swift": true,
	".sh": true, ".bash": true, ".zsh": true, ".fish": true,
	".sql": true,
	".yaml": true, ".yml": true, ".json": true, ".toml": true, ".xml": true, ".ini": true, ".cfg": true, ".conf": true,
	".html": true, ".htm": true, ".css": true, ".scss": true, ".sass": true, ".less": true,
	".md": true, ".markdown": true, ".txt": true, ".rst": true,
	".vb": true, ".cls": true, ".frm": true, ".bas": true, ".mod": true,
	".dsr": true, ".dca": true, ".dsx": true,
	".vbp": true, ".vbg": true, ".vbw": true,
	".ocx": true,
	".obj": true, ".frx": true,
	".pas": true, ".dpk": true, ".dpr": true,
	".r": true, ".lua": true, ".pl": true, ".pm": true, ".ex": true, ".exs": true, ".erl": true, ".hs": true,
	".ml": true, ".fs": true, ".fsx": true, ".clj": true, ".cljs": true, ".dart": true, ".elm": true,
	".vue": true, ".svelte": true,
	".ps1": true, ".psm1": true, ".bat": true, ".cmd": true, ".awk": true,
	".gradle": true, ".maven": true, ".cmake": true, ".make": true, ".dockerfile": true,
	".csv": true, ".tsv": true, ".parquet": true,
	".env": true, ".gitignore": true, ".dockerignore": true,
	".adb": true, ".ads": true, ".ada": true,
	".asm": true, ".s": true,
	".m": true, ".mm": true,
	".f": true, ".f90": true, ".f95": true,
	".cob": true, ".cbl": true,
	".pro": true,
	".mup": true,
	".sci": true, ".sce": true,
	".jl":   true,
	".nim":  true,
	".zig":  true,
	".v":    true,
	".sv":   true,
	".vhdl": true,
}

// legacyLanguageNames fills in names for extensions go-enry doesn't recognise
// (VB6/Delphi/legacy-enterprise families, plus a few ambiguous-by-extension
// ones) — consulted only when go-enry's own detection comes back empty.
var legacyLanguageNames = map[string]string{
	".vb": "Visual Basic", ".cls": "VB Class", ".frm": "VB Form", ".bas": "VB Module", ".mod": "VB Module",
	".dsr": "VB Data Report", ".dca": "VB Data Report", ".dsx": "VB Data Report",
	".vbp": "VB Project", ".vbg": "VB Project Group", ".vbw": "VB Workspace",
	".ocx": "VB ActiveX Control",
	".obj": "VB6 Form Binary", ".frx": "VB6 Form Binary",
	".pas": "Pascal", ".dpk": "Delphi Package", ".dpr": "Delphi Project",
	".adb": "Ada", ".ads": "Ada", ".ada": "Ada",
	".cob": "COBOL", ".cbl": "COBOL",
	".pro": "Prolog",
	".mup": "MuPAD",
	".sci": "Scilab", ".sce": "Scilab",
	".vhdl": "VHDL",
}

// defaultExcludeDirs is the baseline directory-name exclude set — config's
// ExcludeDirs supplements rather than replaces it.
var defaultExcludeDirs = map[string]bool{
	"node_modules": true, ".git": true, "__pycache__": true, ".venv": true, "venv": true,
	"dist": true, "build": true, ".next": true, ".nuxt": true, "target": true, ".pytest_cache": true,
	".mypy_cache": true, ".tox": true, ".eggs": true, ".DS_Store": true,
	".idea": true, ".vscode": true, "vendor": true, "bin": true, "obj": true, "log": true,
}

// vb6Extensions identifies the structurally-binary VB6 file types that need
// the ASCII/metadata filter before indexing.
var vb6Extensions = map[string]bool{
	".frm": true, ".dsr": true, ".dca": true, ".dsx": true,
}
