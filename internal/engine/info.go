package engine

import (
	"path/filepath"

	"github.com/hailam/chessplay/sfnnue"
)

// NetworkFile describes one loaded network.
type NetworkFile struct {
	File        string `json:"file"`
	Description string `json:"description"`
	Hash        uint32 `json:"hash"`
}

// Info is the network architecture and the files it was loaded from.
type Info struct {
	TransformedFeatureDimensionsBig   int `json:"TransformedFeatureDimensionsBig"`
	TransformedFeatureDimensionsSmall int `json:"TransformedFeatureDimensionsSmall"`
	PSQTBuckets                       int `json:"PSQTBuckets"`
	LayerStacks                       int `json:"LayerStacks"`
	L2Big                             int `json:"L2Big"`
	L3Big                             int `json:"L3Big"`
	L2Small                           int `json:"L2Small"`
	L3Small                           int `json:"L3Small"`

	Big   *NetworkFile `json:"big,omitempty"`
	Small *NetworkFile `json:"small,omitempty"`
}

// Architecture returns the compile-time network dimensions. It does not need
// any network to be loaded.
func Architecture() Info {
	return Info{
		TransformedFeatureDimensionsBig:   sfnnue.TransformedFeatureDimensionsBig,
		TransformedFeatureDimensionsSmall: sfnnue.TransformedFeatureDimensionsSmall,
		PSQTBuckets:                       sfnnue.PSQTBuckets,
		LayerStacks:                       sfnnue.LayerStacks,
		L2Big:                             sfnnue.L2Big,
		L3Big:                             sfnnue.L3Big,
		L2Small:                           sfnnue.L2Small,
		L3Small:                           sfnnue.L3Small,
	}
}

// NetworkInfo returns the architecture plus the loaded files.
func (e *Engine) NetworkInfo() Info {
	info := Architecture()
	info.Big = &NetworkFile{
		File:        filepath.Base(e.bigFile),
		Description: e.nets.Big.NetDescription,
		Hash:        e.nets.Big.Hash,
	}
	info.Small = &NetworkFile{
		File:        filepath.Base(e.smallFile),
		Description: e.nets.Small.NetDescription,
		Hash:        e.nets.Small.Hash,
	}
	return info
}

// Key identifies the loaded network pair, e.g. for caching evaluations.
func (e *Engine) Key() string {
	return filepath.Base(e.bigFile) + "+" + filepath.Base(e.smallFile)
}
