package engine

import "strings"

const (
	keywordWeight = 2
	phraseWeight  = 3
	askThreshold  = 2
)

// categoryLexicon holds the keyword and action-phrase substrings for one category.
// Matching is case-insensitive substring containment; each entry counts once.
type categoryLexicon struct {
	category Category
	keywords []string
	phrases  []string
}

// Declaration order is the tie-break: on equal scores the earlier category wins.
var categoryLexicons = []categoryLexicon{
	{
		category: CategoryCustomer,
		keywords: []string{"ลูกค้า", "customer", "client", "ผู้ติดต่อ", "contact", "crm"},
		phrases:  []string{"เพิ่มลูกค้า", "ลูกค้าใหม่", "ข้อมูลลูกค้า", "รายชื่อลูกค้า", "add customer", "new customer", "customer list"},
	},
	{
		category: CategoryTask,
		keywords: []string{"งาน", "task", "todo", "to-do", "โปรเจค", "project", "deadline", "กำหนดส่ง"},
		phrases:  []string{"มอบหมาย", "assign to", "mark as done", "ติดตามงาน", "follow up", "ปิดงาน", "เลื่อนกำหนด"},
	},
	{
		category: CategorySales,
		keywords: []string{"ขาย", "sales", "order", "ออเดอร์", "invoice", "ใบแจ้งหนี้", "ใบเสนอราคา", "quotation", "deal"},
		phrases:  []string{"ยอดขาย", "ปิดการขาย", "close deal", "ออกใบแจ้งหนี้", "create invoice", "sales report", "สรุปยอด"},
	},
	{
		category: CategoryEmployee,
		keywords: []string{"พนักงาน", "employee", "staff", "แผนก", "department", "human resources", "เงินเดือน", "payroll"},
		phrases:  []string{"เพิ่มพนักงาน", "รับพนักงาน", "onboard", "ขอลา", "leave request", "วันลา", "ลาออก"},
	},
	{
		category: CategoryInventory,
		keywords: []string{"สินค้า", "stock", "สต็อก", "inventory", "คลัง", "warehouse", "product", "sku"},
		phrases:  []string{"เติมสต็อก", "restock", "ตรวจนับ", "stock count", "เช็คสต็อก", "สินค้าคงเหลือ", "out of stock"},
	},
}

// actionLexicon is checked in declared order; the first set with any hit wins.
var actionLexicon = []struct {
	action   Action
	keywords []string
}{
	{ActionCreate, []string{"เพิ่ม", "สร้าง", "บันทึก", "create", "add", "new", "insert"}},
	{ActionRead, []string{"ดู", "แสดง", "ค้นหา", "เช็ค", "ตรวจสอบ", "list", "show", "get", "find", "search", "view"}},
	{ActionUpdate, []string{"แก้ไข", "แก้", "อัปเดต", "อัพเดท", "เปลี่ยน", "update", "edit", "change", "modify"}},
	{ActionDelete, []string{"ลบ", "ยกเลิก", "delete", "remove", "cancel"}},
}

// Analyzer scores normalized text against the category lexicons.
type Analyzer struct {
	lexicons []categoryLexicon
}

// NewAnalyzer creates an Analyzer over the built-in lexicons.
func NewAnalyzer() *Analyzer {
	return &Analyzer{lexicons: categoryLexicons}
}

// Analyze returns the winning category, the first matching action, and the
// winning score. It is deterministic for a given input.
func (a *Analyzer) Analyze(text string) IntentResult {
	lower := strings.ToLower(text)

	best := CategoryNone
	bestScore := 0
	for _, lex := range a.lexicons {
		score := keywordWeight*countContained(lower, lex.keywords) + phraseWeight*countContained(lower, lex.phrases)
		if score > bestScore {
			best = lex.category
			bestScore = score
		}
	}

	return IntentResult{
		Category:   best,
		Action:     detectAction(lower),
		Confidence: bestScore,
		ShouldAsk:  bestScore < askThreshold,
	}
}

func detectAction(lower string) Action {
	for _, set := range actionLexicon {
		if countContained(lower, set.keywords) > 0 {
			return set.action
		}
	}
	return ActionNone
}

func countContained(lower string, needles []string) int {
	n := 0
	for _, needle := range needles {
		if strings.Contains(lower, needle) {
			n++
		}
	}
	return n
}
