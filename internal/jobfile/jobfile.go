// Package jobfile reads branch jobs from YAML and writes execution results
// as JSON.
//
// A job file describes one branch as the upgrade worker sees it after the
// package files were edited:
//
//	branchName: renovate/lodash-4.x
//	manager: npm
//	upgrades:
//	  - depName: lodash
//	    packageFile: package.json
//	    newVersion: 4.17.21
//	    postUpgradeTasks:
//	      commands: ["npm ci --ignore-scripts"]
//	      fileFilters: ["package-lock.json"]
//	updatedPackageFiles:
//	  - path: package.json
//	    type: addition
//	    contents: |
//	      {"dependencies": {"lodash": "4.17.21"}}
//
// File contents are plain strings when they are valid UTF-8. Anything else,
// such as a tarball or a jar, is base64 with encoding set:
//
//	- path: .yarn/cache/lodash.zip
//	  type: addition
//	  encoding: base64
//	  contents: UEsDBAoAAAAAA...
package jobfile

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/upcmd/internal/upgrade"
	"github.com/fyrsmithlabs/upcmd/internal/workspace"
)

const maxJobFileSize = 16 << 20 // 16MB

// ErrInvalidJob is returned for a job that parses but is not usable.
var ErrInvalidJob = errors.New("invalid job")

// EncodingBase64 marks FileDoc contents holding base64 of raw bytes.
const EncodingBase64 = "base64"

// FileDoc is a FileChange with textual contents.
type FileDoc struct {
	Path     string             `yaml:"path" json:"path"`
	Type     upgrade.ChangeType `yaml:"type" json:"type"`
	Encoding string             `yaml:"encoding,omitempty" json:"encoding,omitempty"`
	Contents string             `yaml:"contents,omitempty" json:"contents,omitempty"`
}

// Bytes returns the decoded contents.
func (f FileDoc) Bytes() ([]byte, error) {
	switch f.Encoding {
	case "":
		return []byte(f.Contents), nil
	case EncodingBase64:
		return base64.StdEncoding.DecodeString(f.Contents)
	default:
		return nil, fmt.Errorf("unknown encoding %q (want base64 or none)", f.Encoding)
	}
}

func newFileDoc(c upgrade.FileChange) FileDoc {
	doc := FileDoc{Path: c.Path, Type: c.Type}
	if utf8.Valid(c.Contents) {
		doc.Contents = string(c.Contents)
		return doc
	}
	doc.Encoding = EncodingBase64
	doc.Contents = base64.StdEncoding.EncodeToString(c.Contents)
	return doc
}

// BranchDoc is the on-disk form of a BranchConfig.
type BranchDoc struct {
	Manager    string            `yaml:"manager,omitempty"`
	BranchName string            `yaml:"branchName"`
	BaseBranch string            `yaml:"baseBranch,omitempty"`
	Upgrades   []upgrade.Upgrade `yaml:"upgrades"`

	PreUpgradeTasks  *upgrade.TaskSpec `yaml:"preUpgradeTasks,omitempty"`
	PostUpgradeTasks *upgrade.TaskSpec `yaml:"postUpgradeTasks,omitempty"`

	UpdatedPackageFiles []FileDoc               `yaml:"updatedPackageFiles,omitempty"`
	UpdatedArtifacts    []FileDoc               `yaml:"updatedArtifacts,omitempty"`
	ArtifactErrors      []upgrade.ArtifactError `yaml:"artifactErrors,omitempty"`
}

// ResultDoc is the JSON form of an ExecutionResult.
type ResultDoc struct {
	UpdatedArtifacts []FileDoc               `json:"updatedArtifacts"`
	ArtifactErrors   []upgrade.ArtifactError `json:"artifactErrors"`
}

// Load reads and validates a job file.
func Load(path string) (*upgrade.BranchConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open job file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxJobFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read job file: %w", err)
	}
	if len(data) > maxJobFileSize {
		return nil, fmt.Errorf("job file too large (max %d bytes)", maxJobFileSize)
	}

	branch, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("job file %s: %w", path, err)
	}
	return branch, nil
}

// Decode parses a single YAML document into a BranchConfig. Unknown fields
// are rejected.
func Decode(data []byte) (*upgrade.BranchConfig, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidJob)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc BranchDoc
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse job: %w", err)
	}
	var extra interface{}
	if err := dec.Decode(&extra); err == nil {
		return nil, fmt.Errorf("%w: multiple YAML documents are not supported", ErrInvalidJob)
	} else if !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse job: %w", err)
	}

	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc.Branch(), nil
}

// Validate reports every problem in the document.
func (d *BranchDoc) Validate() error {
	var errs error
	if d.BranchName == "" {
		errs = multierr.Append(errs, fmt.Errorf("%w: branchName is required", ErrInvalidJob))
	}
	for i, u := range d.Upgrades {
		if u.DepName == "" {
			errs = multierr.Append(errs, fmt.Errorf("%w: upgrades[%d].depName is required", ErrInvalidJob, i))
		}
		errs = multierr.Append(errs, validateTasks(fmt.Sprintf("upgrades[%d].preUpgradeTasks", i), u.PreUpgradeTasks))
		errs = multierr.Append(errs, validateTasks(fmt.Sprintf("upgrades[%d].postUpgradeTasks", i), u.PostUpgradeTasks))
	}
	errs = multierr.Append(errs, validateTasks("preUpgradeTasks", d.PreUpgradeTasks))
	errs = multierr.Append(errs, validateTasks("postUpgradeTasks", d.PostUpgradeTasks))
	errs = multierr.Append(errs, validateFiles("updatedPackageFiles", d.UpdatedPackageFiles))
	errs = multierr.Append(errs, validateFiles("updatedArtifacts", d.UpdatedArtifacts))
	return errs
}

// Branch converts the document to the orchestrator's data model. Contents
// that fail to decode are dropped; Validate reports them.
func (d *BranchDoc) Branch() *upgrade.BranchConfig {
	return &upgrade.BranchConfig{
		Manager:             d.Manager,
		BranchName:          d.BranchName,
		BaseBranch:          d.BaseBranch,
		Upgrades:            append([]upgrade.Upgrade(nil), d.Upgrades...),
		PreUpgradeTasks:     d.PreUpgradeTasks,
		PostUpgradeTasks:    d.PostUpgradeTasks,
		UpdatedPackageFiles: toChanges(d.UpdatedPackageFiles),
		UpdatedArtifacts:    toChanges(d.UpdatedArtifacts),
		ArtifactErrors:      append([]upgrade.ArtifactError(nil), d.ArtifactErrors...),
	}
}

// NewResultDoc converts a result for output. A nil result stays nil.
func NewResultDoc(res *upgrade.ExecutionResult) *ResultDoc {
	if res == nil {
		return nil
	}
	doc := &ResultDoc{
		UpdatedArtifacts: fromChanges(res.UpdatedArtifacts),
		ArtifactErrors:   append([]upgrade.ArtifactError{}, res.ArtifactErrors...),
	}
	return doc
}

// WriteResult writes res as indented JSON followed by a newline. A nil
// result, from a skipped phase, is written as null.
func WriteResult(w io.Writer, res *upgrade.ExecutionResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(NewResultDoc(res)); err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return nil
}

func validateTasks(field string, t *upgrade.TaskSpec) error {
	if t == nil {
		return nil
	}
	if !t.ExecutionMode.Valid() {
		return fmt.Errorf("%w: %s.executionMode %q (want update or branch)", ErrInvalidJob, field, t.ExecutionMode)
	}
	return nil
}

func validateFiles(field string, files []FileDoc) error {
	var errs error
	for i, f := range files {
		if _, err := workspace.CleanRelative(f.Path); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%w: %s[%d].path: %v", ErrInvalidJob, field, i, err))
		}
		if f.Type != upgrade.ChangeAddition && f.Type != upgrade.ChangeDeletion {
			errs = multierr.Append(errs, fmt.Errorf("%w: %s[%d].type %q (want addition or deletion)", ErrInvalidJob, field, i, f.Type))
		}
		if _, err := f.Bytes(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%w: %s[%d].contents: %v", ErrInvalidJob, field, i, err))
		}
	}
	return errs
}

func toChanges(files []FileDoc) []upgrade.FileChange {
	if len(files) == 0 {
		return nil
	}
	out := make([]upgrade.FileChange, 0, len(files))
	for _, f := range files {
		c := upgrade.FileChange{Path: f.Path, Type: f.Type}
		if f.Type == upgrade.ChangeAddition {
			c.Contents, _ = f.Bytes()
		}
		out = append(out, c)
	}
	return out
}

func fromChanges(changes []upgrade.FileChange) []FileDoc {
	out := make([]FileDoc, 0, len(changes))
	for _, c := range changes {
		out = append(out, newFileDoc(c))
	}
	return out
}
