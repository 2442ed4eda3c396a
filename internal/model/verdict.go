package model

// Verdict は1回の提出に対するジャッジ結果を表す。
// プラットフォーム固有の判定文字列は各アダプタがこの正規形に写像する。
// 写像は全域でなければならない（未知の判定はVerdictUnknownに落とす）。
type Verdict string

const (
	// VerdictAC は正解（Accepted）。
	VerdictAC Verdict = "AC"
	// VerdictWA は誤答（Wrong Answer）。
	VerdictWA Verdict = "WA"
	// VerdictTLE は時間超過（Time Limit Exceeded）。
	VerdictTLE Verdict = "TLE"
	// VerdictMLE はメモリ超過（Memory Limit Exceeded）。
	VerdictMLE Verdict = "MLE"
	// VerdictRE は実行時エラー（Runtime Error）。
	VerdictRE Verdict = "RE"
	// VerdictCE はコンパイルエラー（Compilation Error）。
	VerdictCE Verdict = "CE"
	// VerdictPE は出力形式誤り（Presentation Error）。
	VerdictPE Verdict = "PE"
	// VerdictOLE は出力超過（Output Limit Exceeded）。
	VerdictOLE Verdict = "OLE"
	// VerdictUnknown は正規形に写像できない判定のフォールバック。
	VerdictUnknown Verdict = "UNKNOWN"
)
