package dispatcher

import (
	"fmt"
	"strings"

	"lifesignal/internal/analysis"
	"lifesignal/internal/models"
)

const messageHeader = "EMERGENCY ALERT from LifeSignal"

// ComposeMessage 组装发给联系人的报警短信
// 每一行只在对应数据存在时出现，心率取整到 BPM，血氧保留一位小数
func ComposeMessage(v models.Vitals, risk *analysis.Result) string {
	var b strings.Builder
	b.WriteString(messageHeader)
	b.WriteString("\n\n")

	if v.HeartRate != nil {
		fmt.Fprintf(&b, "Heart Rate: %d BPM\n", int(*v.HeartRate))
	}
	if v.BloodOxygen != nil {
		fmt.Fprintf(&b, "Blood Oxygen: %.1f%%\n", *v.BloodOxygen)
	}
	if v.FallDetected {
		b.WriteString("Fall Detected!\n")
	}
	if v.Location != nil {
		fmt.Fprintf(&b, "\nLocation: %s", v.Location.MapsURL())
	}

	if risk != nil {
		fmt.Fprintf(&b, "\nRisk score: %.2f", risk.RiskScore)
		for _, rec := range risk.Recommendations {
			fmt.Fprintf(&b, "\n- %s", rec)
		}
	}
	return b.String()
}
