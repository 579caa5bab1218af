package dispatcher

import (
	"fmt"

	"lifesignal/internal/models"
)

// 通知类别
const (
	CategoryHeartRate    = "HEART_RATE_ALERT"
	CategoryBloodOxygen  = "BLOOD_OXYGEN_ALERT"
	CategoryFall         = "FALL_DETECTED_ALERT"
	CategoryEmergency    = "EMERGENCY_ALERT"
	CategoryContactAlert = "CONTACT_ALERT"
)

// 通知动作
const (
	ActionCheckDetails  = "CHECK_DETAILS_ACTION"
	ActionCallEmergency = "CALL_EMERGENCY_ACTION"
	ActionDismiss       = "DISMISS_ACTION"
)

var (
	vitalActions = []string{ActionCheckDetails, ActionCallEmergency, ActionDismiss}
	fallActions  = []string{ActionCallEmergency, ActionDismiss}
)

// NotificationFor 升级决定对应的本机通知
func NotificationFor(d models.EscalationDecision) models.Notification {
	payload := map[string]any{
		"episode_id": d.EpisodeID,
		"kind":       string(d.Kind),
		"source":     string(d.Source),
	}
	if d.Event.Value != nil {
		payload["value"] = *d.Event.Value
	}

	switch d.Kind {
	case models.KindHeartRate:
		return models.Notification{
			Title:    "Abnormal Heart Rate Detected",
			Body:     fmt.Sprintf("Heart rate is %d BPM, which is outside the normal range.", int(valueOf(d.Event.Value, d.Vitals.HeartRate))),
			Category: CategoryHeartRate,
			Actions:  vitalActions,
			Payload:  payload,
		}
	case models.KindBloodOxygen:
		return models.Notification{
			Title:    "Low Blood Oxygen Level",
			Body:     fmt.Sprintf("Blood oxygen is %.1f%%, which is below the recommended level.", valueOf(d.Event.Value, d.Vitals.BloodOxygen)),
			Category: CategoryBloodOxygen,
			Actions:  vitalActions,
			Payload:  payload,
		}
	case models.KindFall:
		body := "A fall was detected."
		if d.Vitals.Location != nil {
			body += " Location data is available."
			payload["location"] = d.Vitals.Location.MapsURL()
		}
		return models.Notification{
			Title:    "Fall Detected",
			Body:     body,
			Category: CategoryFall,
			Actions:  fallActions,
			Payload:  payload,
		}
	default:
		return models.Notification{
			Title:    "Emergency Alert Triggered",
			Body:     "Your emergency contacts are being notified.",
			Category: CategoryEmergency,
			Actions:  fallActions,
			Payload:  payload,
		}
	}
}

// ContactConfirmation 联系人报警已发出的确认通知
func ContactConfirmation(rec models.AlertRecord) models.Notification {
	return models.Notification{
		Title:    "Alert Sent to Emergency Contact",
		Body:     fmt.Sprintf("Emergency alert was sent to %s", rec.ContactName),
		Category: CategoryContactAlert,
		Payload: map[string]any{
			"episode_id": rec.EpisodeID,
			"contact_id": rec.ContactID,
		},
	}
}

func valueOf(primary, fallback *float64) float64 {
	if primary != nil {
		return *primary
	}
	if fallback != nil {
		return *fallback
	}
	return 0
}
