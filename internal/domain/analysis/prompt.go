package analysis

import (
	"fmt"
	"strings"

	"github.com/lithammer/dedent"
)

// Sentinel is the fixed marker the model is instructed to return when nothing
// material changed since the previous analysis. Matching free-form model
// output against a fixed string is fragile; kept because the speech layer
// needs a change signal and the backend contract has no structured flag yet.
const Sentinel = "変化なし"

var firstPromptNormal = dedent.Dedent(`
	あなたは視覚障害者のための視覚サポートAIアシスタントです。
	画像の主要素と即時の危険を%dつまで、%d字以内の短文で列挙してください。例：
	1. 前方に椅子あり
	2. 右側に人物接近中
	3. 床に障害物あり
`)

var deltaPromptNormal = dedent.Dedent(`
	前回の分析: "%s"

	現在の画像で新たに発生した変化や危険を%dつまで、%d字以内の短文で列挙してください。
	変化がない場合は「%s」とだけ回答してください。例：
	1. 人物が立ち上がる
	2. 左側から車が接近
	3. 信号が青に変わる
`)

var firstPromptDetailed = dedent.Dedent(`
	あなたは視覚障害者のための視覚サポートAIアシスタントです。
	現在の画像の主要な要素、潜在的な障害物、危険要素を%dつまで、%d字以内の短文で列挙してください。
	画像内の人物や文字情報にも注目し、重要な情報があれば含めてください。
`)

var deltaPromptDetailed = dedent.Dedent(`
	前回の分析: "%s"

	現在の画像の主要な要素、潜在的な障害物、危険要素について、新たに発生した変化を
	%dつまで、%d字以内の短文で列挙してください。人物や文字情報にも注目してください。
	変化がない場合は「%s」とだけ回答してください。
`)

var firstPromptVideo = dedent.Dedent(`
	動画を分析し、以下の点に焦点を当てて簡潔に説明してください：
	1. 検出された主要なオブジェクトとその動き
	2. 潜在的な障害物や危険要素
	3. シーンの変化や重要なイベント
	4. 画面内に表示されるテキスト情報

	回答は%dつまでの短い日本語の文（各%d字以内）で、シンプルで直接的な表現を使用してください。
`)

var deltaPromptVideo = dedent.Dedent(`
	前回の分析: "%s"

	動画を分析し、前回からの主な変更点、オブジェクトの動き、新たな障害物や危険要素を
	%dつまでの短い日本語の文（各%d字以内）で説明してください。
	変化がない場合は「%s」とだけ回答してください。
`)

// BuildPrompt selects the first-analysis or delta template for the context's
// mode. A nil Previous always selects the first-analysis template, regardless
// of the FirstCycle flag: first cycle is defined by the absence of a baseline.
func BuildPrompt(actx Context) string {
	clauses := actx.Mode.MaxClauses()
	budget := actx.Mode.ClauseBudget()

	if actx.Previous == nil {
		switch actx.Mode {
		case ModeDetailed:
			return strings.TrimSpace(fmt.Sprintf(firstPromptDetailed, clauses, budget))
		case ModeVideo:
			return strings.TrimSpace(fmt.Sprintf(firstPromptVideo, clauses, budget))
		default:
			return strings.TrimSpace(fmt.Sprintf(firstPromptNormal, clauses, budget))
		}
	}

	prev := *actx.Previous
	switch actx.Mode {
	case ModeDetailed:
		return strings.TrimSpace(fmt.Sprintf(deltaPromptDetailed, prev, clauses, budget, Sentinel))
	case ModeVideo:
		return strings.TrimSpace(fmt.Sprintf(deltaPromptVideo, prev, clauses, budget, Sentinel))
	default:
		return strings.TrimSpace(fmt.Sprintf(deltaPromptNormal, prev, clauses, budget, Sentinel))
	}
}

// IsNoChange reports whether model output matches the sentinel. Leading and
// trailing whitespace and trailing punctuation are tolerated.
func IsNoChange(text string) bool {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimRight(trimmed, "。．.、 ")
	return trimmed == Sentinel
}

// ClampClauses trims model output to at most max non-empty lines. The model
// is instructed to stay within the budget, but output is bounded here too so
// a rambling reply never reaches the speech channel.
func ClampClauses(text string, max int) string {
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, max)
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		kept = append(kept, line)
		if len(kept) == max {
			break
		}
	}
	return strings.Join(kept, "\n")
}
