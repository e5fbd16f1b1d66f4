// Package splitter 实现了文档分块的核心流程：
// 将原始文本按可配置策略切分为有序、非空、带来源元数据的 Chunk 序列。
package splitter

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"nexusmind-go/internal/model"
)

// Strategy 是分块策略选择器。
type Strategy string

const (
	// StrategyFast 吞吐优先：使用简短分隔符列表递归切分。
	StrategyFast Strategy = "fast"
	// StrategyHiRes 语义优先：使用扩展分隔符列表并做边界后处理。
	StrategyHiRes Strategy = "hi_res"
	// StrategyAuto 按内容长度在 FAST 与 HI_RES 之间自动选择。
	StrategyAuto Strategy = "auto"
)

// 默认的 AUTO 策略切换阈值（字符数）。超过该长度的内容改用 FAST。
const defaultAutoThreshold = 100000

// HI_RES 策略的重叠上限占块大小的比例。
const hiResMaxOverlapRatio = 0.3

// 终结性标点集合，HI_RES 后处理与去重启发式共用。
const terminalPunctuation = "。！？；.!?;"

// Settings 配置文档分块的行为。
type Settings struct {
	ChunkSize     int      // 每个块的目标大小（字符数）
	ChunkOverlap  int      // 块之间的重叠大小（字符数）
	Separator     string   // FAST 策略的首选分隔符
	Strategy      Strategy // 分块策略
	AutoThreshold int      // AUTO 策略的长度阈值，0 表示使用默认值
}

// DefaultSettings 返回与配置缺省一致的分块设置。
func DefaultSettings() Settings {
	return Settings{
		ChunkSize:     1000,
		ChunkOverlap:  200,
		Separator:     "\n",
		Strategy:      StrategyAuto,
		AutoThreshold: defaultAutoThreshold,
	}
}

// fastSeparators 返回 FAST 策略的分隔符列表：段落 → 换行 → 空白 → 字符。
func fastSeparators(preferred string) []string {
	seps := make([]string, 0, 5)
	if preferred != "" {
		seps = append(seps, preferred)
	}
	for _, s := range []string{"\n\n", "\n", " ", ""} {
		if s != preferred {
			seps = append(seps, s)
		}
	}
	return seps
}

// hiResSeparators 是 HI_RES 策略的分隔符列表，按优先级排序，
// 优先在中英文句末标点处断句。
var hiResSeparators = []string{
	"\n\n", // 段落分隔（最高优先级）
	"。\n",
	"！\n",
	"？\n",
	"；\n",
	".\n",
	"!\n",
	"?\n",
	";\n",
	"。",
	"！",
	"？",
	"；",
	". ",
	"! ",
	"? ",
	"; ",
	"\n",
	" ",
	"", // 字符（最低优先级）
}

// Split 按设置中的策略将文本切分为有序的块文本序列。
// 空白内容返回空序列；未知策略返回错误。
func Split(content string, st Settings) ([]string, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	if st.ChunkSize <= 0 {
		return nil, fmt.Errorf("无效的 chunk_size: %d", st.ChunkSize)
	}

	switch st.Strategy {
	case StrategyFast:
		return fastSplit(content, st), nil
	case StrategyHiRes:
		return hiResSplit(content, st), nil
	case StrategyAuto, "":
		threshold := st.AutoThreshold
		if threshold <= 0 {
			threshold = defaultAutoThreshold
		}
		// 长文本走 FAST 保证吞吐，短文本走 HI_RES 保证边界质量
		if runeLen(content) > threshold {
			return fastSplit(content, st), nil
		}
		return hiResSplit(content, st), nil
	default:
		return nil, fmt.Errorf("未知的分块策略 '%s'", st.Strategy)
	}
}

// fastSplit 使用简短分隔符列表按配置的大小和重叠切分。
func fastSplit(content string, st Settings) []string {
	overlap := st.ChunkOverlap
	if overlap >= st.ChunkSize {
		overlap = 0
	}
	return recursiveSplit(content, fastSeparators(st.Separator), st.ChunkSize, overlap)
}

// hiResSplit 使用扩展分隔符列表切分，并做边界后处理。
func hiResSplit(content string, st Settings) []string {
	chunks := recursiveSplit(content, hiResSeparators, st.ChunkSize, EffectiveHiResOverlap(st.ChunkSize, st.ChunkOverlap))
	return postProcessHiRes(chunks)
}

// EffectiveHiResOverlap 返回 HI_RES 策略实际采用的重叠大小：
// 配置值的两倍，上限为块大小的 30%。
func EffectiveHiResOverlap(chunkSize, chunkOverlap int) int {
	maxOverlap := int(float64(chunkSize) * hiResMaxOverlapRatio)
	overlap := chunkOverlap * 2
	if overlap > maxOverlap {
		overlap = maxOverlap
	}
	return overlap
}

// recursiveSplit 递归地尝试分隔符列表：用第一个出现在文本中的分隔符切开，
// 将切片贪心合并到不超过 chunkSize 的块中；仍超长的切片用后续分隔符继续切分。
// 新块会携带前一块末尾不超过 overlap 个字符的完整切片作为重叠。
func recursiveSplit(text string, separators []string, chunkSize, overlap int) []string {
	if runeLen(text) <= chunkSize {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		return []string{trimmed}
	}

	// 选择第一个出现在文本中的分隔符；空字符串分隔符表示按字符硬切
	sep := ""
	var rest []string
	for i, s := range separators {
		if s == "" {
			break
		}
		if strings.Contains(text, s) {
			sep = s
			rest = separators[i+1:]
			break
		}
	}

	if sep == "" {
		return windowSplit(text, chunkSize, overlap)
	}

	// 切开并保留分隔符在前一片末尾，避免丢失边界信息
	pieces := strings.SplitAfter(text, sep)

	// 超长的切片用剩余分隔符递归细分
	var units []string
	for _, p := range pieces {
		if p == "" {
			continue
		}
		if runeLen(p) > chunkSize {
			units = append(units, subSplit(p, rest, chunkSize, overlap)...)
		} else {
			units = append(units, p)
		}
	}

	return mergeUnits(units, chunkSize, overlap)
}

// subSplit 用剩余分隔符继续切分一个超长切片。
func subSplit(piece string, rest []string, chunkSize, overlap int) []string {
	if len(rest) == 0 {
		return windowSplit(piece, chunkSize, overlap)
	}
	return recursiveSplit(piece, rest, chunkSize, overlap)
}

// mergeUnits 将切片序列贪心合并为不超过 chunkSize 的块，
// 并在块边界处携带不超过 overlap 个字符的尾部切片作为重叠。
func mergeUnits(units []string, chunkSize, overlap int) []string {
	var chunks []string
	var current []string
	currentLen := 0

	flush := func() {
		if currentLen == 0 {
			return
		}
		chunk := strings.TrimSpace(strings.Join(current, ""))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		// 保留尾部切片作为下一块的重叠
		var kept []string
		keptLen := 0
		for i := len(current) - 1; i >= 0; i-- {
			l := runeLen(current[i])
			if keptLen+l > overlap {
				break
			}
			kept = append([]string{current[i]}, kept...)
			keptLen += l
		}
		current = kept
		currentLen = keptLen
	}

	for _, u := range units {
		l := runeLen(u)
		if currentLen > 0 && currentLen+l > chunkSize {
			flush()
		}
		current = append(current, u)
		currentLen += l
	}
	if currentLen > 0 {
		chunk := strings.TrimSpace(strings.Join(current, ""))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

// windowSplit 按固定窗口大小和重叠硬切文本，是分隔符全部用尽后的兜底。
func windowSplit(text string, chunkSize, overlap int) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	step := chunkSize - overlap
	if step <= 0 {
		step = chunkSize
	}
	var chunks []string
	for i := 0; i < len(runes); i += step {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunk := strings.TrimSpace(string(runes[i:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// postProcessHiRes 对 HI_RES 的分块做边界清理：
// 去除块首尾的终结性标点，为除最后一块外的每块补上句号标记，
// 并抑制与前一块尾部子句重复的块首文本；清理后为空的块被丢弃。
func postProcessHiRes(chunks []string) []string {
	processed := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		c := strings.TrimSpace(chunk)
		c = strings.TrimLeft(c, terminalPunctuation+" ")
		c = strings.TrimRight(c, terminalPunctuation+" ")
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}

		if i < len(chunks)-1 {
			c += "。"
		}

		// 去重启发式：若本块开头与前一块最后一个终结性标点之后的文本重复则裁掉。
		// 对没有预期标点的文本（代码、表格等）该启发式不生效，属已知局限。
		if len(processed) > 0 {
			tail := strings.TrimSpace(afterLastTerminal(processed[len(processed)-1]))
			if tail != "" && strings.HasPrefix(c, tail) {
				c = strings.TrimSpace(strings.TrimPrefix(c, tail))
			}
		}

		if c != "" {
			processed = append(processed, c)
		}
	}
	return processed
}

// afterLastTerminal 返回文本中最后一个终结性标点之后的部分；
// 不含终结性标点时返回空串。
func afterLastTerminal(text string) string {
	idx := strings.LastIndexAny(text, terminalPunctuation)
	if idx < 0 {
		return ""
	}
	_, size := utf8.DecodeRuneInString(text[idx:])
	return text[idx+size:]
}

// Finalize 为一组分块补全元数据：写入 1 起始的 chunk_index，
// 并把文件级元数据合并进每个块（已有的键不被覆盖）。
func Finalize(chunks []model.Chunk, fileMetadata map[string]string) {
	for i := range chunks {
		if chunks[i].Metadata == nil {
			chunks[i].Metadata = make(map[string]string)
		}
		chunks[i].Metadata["chunk_index"] = strconv.Itoa(i + 1)
		for k, v := range fileMetadata {
			if _, ok := chunks[i].Metadata[k]; !ok {
				chunks[i].Metadata[k] = v
			}
		}
	}
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
