package server

import (
	"encoding/json"
	"net/http"
	"time"
)

// serverInfo is the payload of the /gui-server-info endpoint, consumed by
// the GUI to discover how it is being served.
type serverInfo struct {
	APIURL      string `json:"apiurl"`
	APIVersion  string `json:"apiversion"`
	Version     string `json:"version"`
	Uptime      int64  `json:"uptime"`
	Deployments int    `json:"deployments"`
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	info := serverInfo{
		APIURL:      s.config.APIURL,
		APIVersion:  s.config.APIVersion,
		Version:     Version,
		Uptime:      int64(time.Since(s.startTime) / time.Second),
		Deployments: len(s.deployer.Status()),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(info); err != nil {
		s.logger.Error("encode server info failed", "error", err)
	}
}
