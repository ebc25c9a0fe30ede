package utils

// Fixed-key server messages. The deployment's users are Korean-speaking, so
// ko is the default locale; en is kept for the scorer's logs and tests.

var translations = map[string]map[string]string{
	"ko": {
		"submit.accepted":   "데이터가 성공적으로 제출되었습니다.",
		"mark.processed":    "항목이 처리 완료로 표시되었습니다.",
		"reprocess.queued":  "재처리 대기 상태로 변경되었습니다.",
		"form.saved":        "새로운 양식이 성공적으로 저장되었습니다.",
		"form.deleted":      "양식이 성공적으로 삭제되었습니다.",
		"form.notfound":     "해당 ID의 양식을 찾을 수 없습니다.",
		"data.notfound":     "해당 ID의 제출 데이터를 찾을 수 없습니다.",
		"form.unnamed":      "이름 없는 양식",
		"form.unknown":      "알 수 없는 양식",
		"student.erased":    "학생 데이터가 삭제되었습니다.",
		"recalc.done":       "재계산 대기열에 등록되었습니다.",
		"recalc.gap":        "프로필은 복원되었으나 제출 기록 초기화에 실패했습니다. 수동 확인이 필요합니다.",
		"health.ok":         "정상",
	},
	"en": {
		"submit.accepted":   "submission stored",
		"mark.processed":    "items marked as processed",
		"reprocess.queued":  "submission queued for reprocessing",
		"form.saved":        "form saved",
		"form.deleted":      "form deleted",
		"form.notfound":     "form not found",
		"data.notfound":     "submission not found",
		"form.unnamed":      "unnamed form",
		"form.unknown":      "unknown form",
		"student.erased":    "student data erased",
		"recalc.done":       "recalculation queued",
		"recalc.gap":        "profile restored but journal reset failed; manual reconciliation needed",
		"health.ok":         "ok",
	},
}

// T returns the translated string for key in locale; falls back to Korean.
func T(locale, key string) string {
	if m, ok := translations[locale]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	if v, ok := translations["ko"][key]; ok {
		return v
	}
	return key
}
