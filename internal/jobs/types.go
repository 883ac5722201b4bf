package jobs

import (
	"errors"

	"bricksync/internal/cache"
)

// Kind identifies one asynchronous job family on the backend.
type Kind string

const (
	KindGenerate Kind = "generate"
	KindDetect   Kind = "detect"
)

// Path returns the backend route for the kind, per the job protocol:
// POST <path> submits, GET <path>/{job_id} polls.
func (k Kind) Path() string {
	switch k {
	case KindDetect:
		return "/detect_inventory"
	default:
		return "/generate"
	}
}

// GenerateRequest asks the backend to build a brick model from a prompt.
type GenerateRequest struct {
	Prompt          string         `json:"prompt"`
	Seed            *int64         `json:"seed,omitempty"`
	InventoryFilter map[string]int `json:"inventory_filter,omitempty"`
}

func (r *GenerateRequest) Validate() error {
	if r.Prompt == "" {
		return errors.New("prompt is required")
	}
	return nil
}

// Fingerprint derives the cache key from the semantically meaningful fields.
func (r *GenerateRequest) Fingerprint() string {
	return cache.GenerateFingerprint(r.Prompt, r.Seed, r.InventoryFilter)
}

// GenerateResult is the terminal payload of a generate job.
type GenerateResult struct {
	PNGURL          string         `json:"png_url"`
	LDRURL          *string        `json:"ldr_url"`
	GLTFURL         *string        `json:"gltf_url"`
	InstructionsURL *string        `json:"instructions_url"`
	BrickCounts     map[string]int `json:"brick_counts"`
}

// DetectRequest asks the backend to count bricks in an image. Image is the
// encoded payload (data URL or base64), carried verbatim.
type DetectRequest struct {
	Image string `json:"image"`
}

func (r *DetectRequest) Validate() error {
	if r.Image == "" {
		return errors.New("image is required")
	}
	return nil
}

func (r *DetectRequest) Fingerprint() string {
	return cache.DetectFingerprint(r.Image)
}

// DetectResult is the terminal payload of a detect job.
type DetectResult struct {
	BrickCounts map[string]int `json:"brick_counts"`
}

// acceptedResponse is the 202-style acceptance body for a submitted job.
type acceptedResponse struct {
	JobID string `json:"job_id"`
}
