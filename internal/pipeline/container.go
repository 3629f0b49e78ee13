package pipeline

import (
	"truthsig/internal/forensics"
	"truthsig/internal/fusion"
)

// Container check notes.
const (
	NoteProbeUnavailable = "ffprobe unavailable; container anomaly checks skipped."
	NoteMultipleVideo    = "Multiple video streams detected."
	NoteMissingDuration  = "Missing container duration metadata."
	NoteNoAnomalies      = "No structural anomalies detected."
)

// ContainerAnomalies inspects an ffprobe result for structural oddities. A
// nil or failed probe yields NOT_AVAILABLE.
func ContainerAnomalies(probe *forensics.ContainerProbe) *fusion.ContainerAnomalies {
	if probe == nil || probe.Status != forensics.ProbeOK {
		return &fusion.ContainerAnomalies{
			Status: fusion.ContainerNotAvailable,
			Notes:  []string{NoteProbeUnavailable},
		}
	}

	anomalies := []string{}
	videoStreams := 0
	for _, s := range probe.Streams {
		if s.CodecType == "video" {
			videoStreams++
		}
	}
	if videoStreams > 1 {
		anomalies = append(anomalies, NoteMultipleVideo)
	}
	if probe.Format.Duration == "" {
		anomalies = append(anomalies, NoteMissingDuration)
	}

	if len(anomalies) > 0 {
		notes := make([]string, len(anomalies))
		copy(notes, anomalies)
		return &fusion.ContainerAnomalies{Status: fusion.ContainerAnomaly, Notes: notes, Anomalies: anomalies}
	}
	return &fusion.ContainerAnomalies{
		Status:    fusion.ContainerOK,
		Notes:     []string{NoteNoAnomalies},
		Anomalies: anomalies,
	}
}
