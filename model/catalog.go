package model

import "fmt"

// Size is a whisper model size class.
type Size string

const (
	SizeTiny   Size = "tiny"
	SizeBase   Size = "base"
	SizeSmall  Size = "small"
	SizeMedium Size = "medium"
	SizeLarge  Size = "large"
)

// Descriptor identifies one downloadable ggml model. Catalog entries are
// static; only the download state observed on disk changes at runtime.
type Descriptor struct {
	Size     Size
	FileName string
	URL      string
	// ByteSize is the expected file size; a mismatch is treated the same as
	// a digest mismatch.
	ByteSize int64
	// SHA1 is the upstream digest as published for whisper.cpp model files.
	SHA1 string
	// ResidentBytes approximates peak working memory with the model loaded.
	ResidentBytes int64
}

const defaultBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"

const mib = 1 << 20

// catalog mirrors the upstream ggml model table (file sizes and SHA-1 digests
// as published, memory figures from the whisper.cpp benchmarks).
var catalog = []Descriptor{
	{
		Size:          SizeTiny,
		FileName:      "ggml-tiny.bin",
		URL:           defaultBaseURL + "/ggml-tiny.bin",
		ByteSize:      77691713,
		SHA1:          "bd577a113a864445d4c299885e0cb97d4ba92b5f",
		ResidentBytes: 273 * mib,
	},
	{
		Size:          SizeBase,
		FileName:      "ggml-base.bin",
		URL:           defaultBaseURL + "/ggml-base.bin",
		ByteSize:      147951465,
		SHA1:          "465707469ff3a37a2b9b8d8f89f2f99de7299dac",
		ResidentBytes: 388 * mib,
	},
	{
		Size:          SizeSmall,
		FileName:      "ggml-small.bin",
		URL:           defaultBaseURL + "/ggml-small.bin",
		ByteSize:      487601967,
		SHA1:          "55356645c2b361a969dfd0ef2c5a50d530afd8d5",
		ResidentBytes: 852 * mib,
	},
	{
		Size:          SizeMedium,
		FileName:      "ggml-medium.bin",
		URL:           defaultBaseURL + "/ggml-medium.bin",
		ByteSize:      1533763059,
		SHA1:          "fd9727b6e1217c2f614f9b698455c4ffd82463b4",
		ResidentBytes: 2148 * mib,
	},
	{
		Size:          SizeLarge,
		FileName:      "ggml-large-v3.bin",
		URL:           defaultBaseURL + "/ggml-large-v3.bin",
		ByteSize:      3095033483,
		SHA1:          "ad82bf6a9043ceed055076d0fd39f5f186ff8062",
		ResidentBytes: 3894 * mib,
	},
}

// Catalog returns the static model catalog, smallest first.
func Catalog() []Descriptor {
	out := make([]Descriptor, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup resolves a size class to its catalog entry.
func Lookup(size Size) (Descriptor, error) {
	for _, d := range catalog {
		if d.Size == size {
			return d, nil
		}
	}
	return Descriptor{}, fmt.Errorf("unknown model size %q", size)
}

// ValidSize reports whether size names a catalog entry.
func ValidSize(size Size) bool {
	_, err := Lookup(size)
	return err == nil
}

// RecommendForMemory maps available memory to the largest model expected to
// fit with headroom. Ties resolve to the smaller model: a dictation tool that
// always answers beats one that occasionally swaps.
func RecommendForMemory(availableBytes int64) Size {
	const headroom = 1.5
	best := catalog[0].Size
	for _, d := range catalog {
		if float64(d.ResidentBytes)*headroom < float64(availableBytes) {
			best = d.Size
		}
	}
	return best
}
