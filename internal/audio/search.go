package audio

import (
	"encoding/json"
	"fmt"
)

type LoadType string

const (
	LoadTrackLoaded    LoadType = "TRACK_LOADED"
	LoadPlaylistLoaded LoadType = "PLAYLIST_LOADED"
	LoadSearchResult   LoadType = "SEARCH_RESULT"
	LoadNoMatches      LoadType = "NO_MATCHES"
	LoadFailed         LoadType = "LOAD_FAILED"
)

type PlaylistInfo struct {
	Name          string `json:"name,omitempty"`
	SelectedTrack int    `json:"selectedTrack"`
}

// LoadException is reported by the node when loadType is LOAD_FAILED.
type LoadException struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

type SearchResponse struct {
	LoadType     LoadType
	PlaylistInfo PlaylistInfo
	Tracks       []Track
	Exception    *LoadException
}

type rawSearchResponse struct {
	LoadType     LoadType       `json:"loadType"`
	PlaylistInfo PlaylistInfo   `json:"playlistInfo"`
	Tracks       []RawTrack     `json:"tracks"`
	Exception    *LoadException `json:"exception,omitempty"`
}

// ParseSearchResponse decodes a load-tracks response body.
func ParseSearchResponse(data []byte) (*SearchResponse, error) {
	var raw rawSearchResponse
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	res := &SearchResponse{
		LoadType:     raw.LoadType,
		PlaylistInfo: raw.PlaylistInfo,
		Tracks:       make([]Track, 0, len(raw.Tracks)),
		Exception:    raw.Exception,
	}
	for _, t := range raw.Tracks {
		res.Tracks = append(res.Tracks, NewTrack(t))
	}

	return res, nil
}

func (r *SearchResponse) Empty() bool {
	return r == nil || len(r.Tracks) == 0
}

// Selected returns the playlist's selected track, or the first track for other load types.
func (r *SearchResponse) Selected() (Track, bool) {
	if r.Empty() {
		return Track{}, false
	}

	i := r.PlaylistInfo.SelectedTrack
	if r.LoadType == LoadPlaylistLoaded && i >= 0 && i < len(r.Tracks) {
		return r.Tracks[i], true
	}
	return r.Tracks[0], true
}
