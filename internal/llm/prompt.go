package llm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"wei/internal"
)

// ExtractionPrompt builds the vision instruction for a purchase
// document photo. knownSuppliers narrows supplier reading; an empty
// list tells the model to transcribe whatever it sees.
func ExtractionPrompt(knownSuppliers []string) string {
	supplierHint := "无已知供应商，请自行识别"
	if len(knownSuppliers) > 0 {
		supplierHint = strings.Join(knownSuppliers, "、")
	}

	return fmt.Sprintf(`你是一个专业的单据数据提取助手。请分析这张采购单据图片，提取关键信息并严格按照下方的 JSON 格式返回。

请注意：不要使用 Markdown 格式，只返回纯 JSON 字符串。

### 1. 基础信息提取
请提取以下字段：
- 交付日期 (delivery_date): 格式为 YYYY-MM-DD，若未找到则留空。
- 采购商名称 (buyer_name)
- 供应商名称 (supplier_name): 已知供应商列表：%s。

### 2. 商品明细 (items)
请提取表格中的每一行明细数据，包含：
- 数量 (qty): 数字格式
- 单价 (price): 数字格式
- 单位 (unit)
- 原始款号/品名 (raw_style_text): 表格这一行中原本写的款号或品名文字。

### 3. 款号候选池 (style_candidates) —— 关键任务
为了辅助后台系统精准识别款号，请将图片中**所有**可能是"款号"的文本提取到一个列表中。
**提取范围**：
1. 表格明细中的款号列内容。
2. 图片中**红色字体**的手写或打印标注（重点关注）。
3. 任何以字母 T、H、X、D 开头的字母数字组合。

**对于每一个候选文本，请提取以下属性：**
- text: 文本内容（去除空格）。
- is_red: (Boolean) 该文本在图片中是否显示为红色字体？这是最高优先级的判断依据。
- position: (String) 文本所在位置描述，例如："表格内"、"手写标注"、"右上角"、"页眉"。

### 4. 返回格式示例 (JSON)
{
    "delivery_date": "2025-11-24",
    "buyer_name": "某某服饰有限公司",
    "supplier_name": "某某制衣厂",
    "style_candidates": [
        {"text": "T8821", "is_red": false, "position": "表格内"},
        {"text": "H2201", "is_red": true, "position": "图片中间手写标注"}
    ],
    "items": [
        {"qty": 500, "price": 12.5, "unit": "件", "raw_style_text": "T8821"}
    ]
}`, supplierHint)
}

// MatchPromptInput carries everything the reconciliation prompt needs.
type MatchPromptInput struct {
	Document   internal.ExtractedDocument
	Records    []internal.RecordView
	Agent      string
	Deductions map[string]float64
	Now        time.Time
}

// indexedItem mirrors LineItem with an explicit zero-based index so the
// model can reference items unambiguously in its decision.
type indexedItem struct {
	internal.LineItem
	Index int `json:"_index"`
}

// MatchPrompt builds the text-only reconciliation instruction: the
// extracted document (items carrying explicit indices), the candidate
// purchase-requirement records, and the matching rules.
func MatchPrompt(in MatchPromptInput) (string, error) {
	items := make([]indexedItem, len(in.Document.Items))
	for i, item := range in.Document.Items {
		items[i] = indexedItem{LineItem: item, Index: i}
	}
	docView := struct {
		internal.ExtractedDocument
		Items []indexedItem `json:"items"`
	}{ExtractedDocument: in.Document, Items: items}

	docJSON, err := json.MarshalIndent(docView, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}
	recordsJSON, err := json.MarshalIndent(in.Records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal records: %w", err)
	}

	today := in.Now.Format("2006-01-02")
	twoWeeksAgo := in.Now.AddDate(0, 0, -14).Format("2006-01-02")

	var b strings.Builder
	b.WriteString("你是一个采购对账助手。请将送货单识别结果与后台采购需求记录进行匹配，并严格按照要求返回 JSON。\n\n")
	fmt.Fprintf(&b, "今天的日期是 %s，两周前是 %s。优先考虑创建时间在这个区间内的后台记录。\n\n", today, twoWeeksAgo)

	b.WriteString("### 送货单识别结果（items 中的 _index 是明细行的索引）\n")
	b.Write(docJSON)
	b.WriteString("\n\n### 后台采购需求记录\n")
	b.Write(recordsJSON)
	b.WriteString("\n\n")

	if in.Agent != "" {
		fmt.Fprintf(&b, "该供应商的跟单员是：%s。\n", in.Agent)
	}
	if len(in.Deductions) > 0 {
		names := make([]string, 0, len(in.Deductions))
		for name := range in.Deductions {
			names = append(names, name)
		}
		sort.Strings(names)
		b.WriteString("以下供应商存在固定扣款，核对金额时请考虑：\n")
		for _, name := range names {
			fmt.Fprintf(&b, "- %s：%.2f\n", name, in.Deductions[name])
		}
		b.WriteString("\n")
	}

	b.WriteString(`### 匹配规则
1. 数量匹配允许合理容差：布料类数量与记录金额换算后相差 5% 以内视为一致。
2. 一条明细对应一条记录时为直接匹配 (direct_matches)。
3. 多条明细合计对应一条记录时为合并匹配 (merge_matches)。
4. 一条明细需要拆分到多条记录时为拆分匹配 (split_matches)，每条记录单独列出。
5. 单位为"袋"或"吨包"的明细，数量可能是包数而非公斤数，请结合单价与总额判断。
6. 无法确定任何匹配时，status 返回 "fail" 并在 reason 中说明原因。

### 返回格式（纯 JSON，不要 Markdown）
{
    "status": "success",
    "direct_matches": [{"record_id": "...", "ocr_index": 0}],
    "merge_matches": [{"record_id": "...", "ocr_indices": [1, 2]}],
    "split_matches": [{"record_id": "...", "ocr_index": 3}],
    "reason": ""
}`)

	return b.String(), nil
}
