/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package pipeline

// FileMetadata describes the analyzed binary.
type FileMetadata struct {
	Format       string `json:"format"`
	Architecture string `json:"architecture"`
	SizeBytes    int64  `json:"size_bytes"`
}

// Function is one recovered function from the decompilation document.
type Function struct {
	Name         string   `json:"name"`
	EntryAddress string   `json:"entry_address"`
	Size         int64    `json:"size"`
	Disassembly  string   `json:"disassembly"`
	CallTargets  []string `json:"call_targets,omitempty"`
}

// Import is one imported symbol.
type Import struct {
	Library     string `json:"library"`
	Symbol      string `json:"symbol"`
	BindAddress string `json:"bind_address"`
}

// StringItem is one extracted string literal.
type StringItem struct {
	Content  string `json:"content"`
	Address  string `json:"address"`
	Encoding string `json:"encoding"`
}

// Decompilation is the structured document the decompiler collaborator
// returns.
type Decompilation struct {
	Id        string       `json:"id"`
	Metadata  FileMetadata `json:"metadata"`
	Functions []Function   `json:"functions"`
	Imports   []Import     `json:"imports,omitempty"`
	Strings   []StringItem `json:"strings,omitempty"`
}

// FunctionTranslation is the natural-language rendering of one function.
type FunctionTranslation struct {
	Name            string `json:"name"`
	Address         string `json:"address"`
	NaturalLanguage string `json:"natural_language"`
	Purpose         string `json:"purpose,omitempty"`
	Parameters      string `json:"parameters,omitempty"`
	ReturnValue     string `json:"return_value,omitempty"`
}

// ImportTranslation explains one imported symbol.
type ImportTranslation struct {
	Library  string `json:"library"`
	Function string `json:"function"`
	Purpose  string `json:"purpose"`
}

// StringTranslation explains one extracted string.
type StringTranslation struct {
	Content string `json:"content"`
	Address string `json:"address"`
	Usage   string `json:"usage"`
}

// LLMTranslations groups every translated artifact class.
type LLMTranslations struct {
	Functions      []FunctionTranslation `json:"functions,omitempty"`
	Imports        []ImportTranslation   `json:"imports,omitempty"`
	Strings        []StringTranslation   `json:"strings,omitempty"`
	OverallSummary string                `json:"overall_summary,omitempty"`
}

// ArtifactFailure is a per-artifact diagnostic for a translation that did
// not complete; it never carries provider payloads or credentials.
type ArtifactFailure struct {
	Artifact string `json:"artifact"`
	Name     string `json:"name"`
	Reason   string `json:"reason"`
}

// ResultDocument is the merged result written to the blob store and served
// to clients.
type ResultDocument struct {
	Success          bool              `json:"success"`
	FunctionCount    int               `json:"function_count"`
	ImportCount      int               `json:"import_count"`
	StringCount      int               `json:"string_count"`
	DurationSeconds  float64           `json:"duration_seconds"`
	DecompilationId  string            `json:"decompilation_id"`
	LLMTranslations  *LLMTranslations  `json:"llm_translations,omitempty"`
	Salvaged         bool              `json:"salvaged,omitempty"`
	ArtifactFailures []ArtifactFailure `json:"artifact_failures,omitempty"`
}
