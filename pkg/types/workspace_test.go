package types_test

import (
	"testing"
	"time"

	"github.com/scrypster/snapvault/pkg/types"
)

func TestWorkspaceStateRoundTrip(t *testing.T) {
	state := &types.WorkspaceState{
		SchemaVersion: types.WorkspaceSchemaVersion,
		Files: []types.FileEntry{
			{ID: "file-1", Name: "main.go", Content: "package main", Language: "go", UpdatedAt: time.Now().UTC()},
		},
		ActiveFileID: "file-1",
		SavedAt:      time.Now().UTC(),
	}

	payload, err := state.Encode()
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}

	decoded, err := types.DecodeWorkspaceState(payload)
	if err != nil {
		t.Fatalf("DecodeWorkspaceState() failed: %v", err)
	}

	if len(decoded.Files) != 1 || decoded.Files[0].ID != "file-1" {
		t.Errorf("decoded files mismatch: %+v", decoded.Files)
	}
	if decoded.ActiveFileID != "file-1" {
		t.Errorf("expected active file file-1, got %q", decoded.ActiveFileID)
	}
}

func TestDecodeRejectsMissingFiles(t *testing.T) {
	// Valid JSON object, but no files collection at all.
	_, err := types.DecodeWorkspaceState([]byte(`{"schema_version": 1}`))
	if err == nil {
		t.Fatal("expected validation error for payload without files")
	}
}

func TestDecodeRejectsUnknownSchemaVersion(t *testing.T) {
	_, err := types.DecodeWorkspaceState([]byte(`{"schema_version": 99, "files": []}`))
	if err == nil {
		t.Fatal("expected validation error for unknown schema version")
	}
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	_, err := types.DecodeWorkspaceState([]byte(`{"schema_version": 1, "files":`))
	if err == nil {
		t.Fatal("expected decode error for truncated payload")
	}
}

func TestEmptyFilesCollectionIsValid(t *testing.T) {
	decoded, err := types.DecodeWorkspaceState([]byte(`{"schema_version": 1, "files": []}`))
	if err != nil {
		t.Fatalf("DecodeWorkspaceState() failed: %v", err)
	}
	if len(decoded.Files) != 0 {
		t.Errorf("expected empty files, got %d", len(decoded.Files))
	}
}
