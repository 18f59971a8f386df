package web

import (
	"github.com/karaokebar/karaoke-web/internal/chart"
	"github.com/karaokebar/karaoke-web/internal/video"
)

type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	UptimeS   int64  `json:"uptime_s"`
	Sessions  int    `json:"sessions"`
	Blobs     int    `json:"blobs"`
	BlobBytes int64  `json:"blob_bytes"`
}

type ChartResponse struct {
	Entries []chart.Entry `json:"entries"`
}

type SessionResponse struct {
	Page       string `json:"page"`
	Phase      string `json:"phase"`
	Loading    bool   `json:"loading"`
	Complete   bool   `json:"complete"`
	URL        string `json:"url,omitempty"`
	SongName   string `json:"song_name,omitempty"`
	ArtistName string `json:"artist_name,omitempty"`
	Error      string `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func StateToResponse(page video.Page, s video.State) SessionResponse {
	resp := SessionResponse{
		Page:       string(page),
		Phase:      s.Phase.String(),
		Loading:    s.Loading(),
		Complete:   s.Complete,
		URL:        s.URL,
		SongName:   s.Request.SongName,
		ArtistName: s.Request.ArtistName,
	}
	if s.Err != nil {
		resp.Error = s.Err.Error()
	}
	return resp
}
