package dispatch

import (
	"context"

	"github.com/google/uuid"
)

const toolPrefix = "mcp__lark-tenant__"

// Reusable schema fragments.
const (
	schemaTableOnly = `{"type":"object","required":["table_id"],"properties":{"table_id":{"type":"string","minLength":1}}}`
	schemaLimit     = `{"type":"object","properties":{"limit":{"type":"integer","minimum":1,"maximum":500}}}`
)

// defaultRoutes is the dispatch table. Order is significant: the first route
// whose phrase appears in the command wins, so a phrase that contains another
// must be declared before it.
func defaultRoutes() []Route {
	return []Route{
		// Tables
		{
			Category: CategoryTables, Phrase: "create table", Local: "สร้างตาราง", Op: "create_table",
			Tool: toolPrefix + "bitable_v1_appTable_create", Bitable: true,
			Schema: `{"type":"object","properties":{"name":{"type":"string"},"view_name":{"type":"string"},"fields":{"type":"array","items":{"type":"object"}}}}`,
			handle: (*Router).createTable,
		},
		{
			Category: CategoryTables, Phrase: "list tables", Local: "ดูตาราง", Op: "list_tables",
			Tool: toolPrefix + "bitable_v1_appTable_list", Bitable: true,
			handle: (*Router).listTables,
		},
		{
			Category: CategoryTables, Phrase: "delete table", Local: "ลบตาราง", Op: "delete_table",
			Tool: toolPrefix + "bitable_v1_appTable_delete", Bitable: true,
			Schema: schemaTableOnly,
			handle: (*Router).deleteTable,
		},
		{
			Category: CategoryTables, Phrase: "update table", Local: "แก้ไขตาราง", Op: "update_table",
			Tool: toolPrefix + "bitable_v1_appTable_patch", Bitable: true,
			Schema: `{"type":"object","required":["table_id","name"],"properties":{"table_id":{"type":"string","minLength":1},"name":{"type":"string","minLength":1}}}`,
			handle: (*Router).updateTable,
		},

		// Fields
		{
			Category: CategoryFields, Phrase: "create field", Local: "สร้างฟิลด์", Op: "create_field",
			Tool: toolPrefix + "bitable_v1_appTableField_create", Bitable: true,
			Schema: `{"type":"object","required":["table_id","field_name"],"properties":{"table_id":{"type":"string","minLength":1},"field_name":{"type":"string","minLength":1},"type":{"type":"integer"},"ui_type":{"type":"string"},"property":{"type":"object"}}}`,
			handle: (*Router).createField,
		},
		{
			Category: CategoryFields, Phrase: "list fields", Local: "ดูฟิลด์", Op: "list_fields",
			Tool: toolPrefix + "bitable_v1_appTableField_list", Bitable: true,
			Schema: schemaTableOnly,
			handle: (*Router).listFields,
		},
		{
			Category: CategoryFields, Phrase: "delete field", Local: "ลบฟิลด์", Op: "delete_field",
			Tool: toolPrefix + "bitable_v1_appTableField_delete", Bitable: true,
			Schema: `{"type":"object","required":["table_id","field_id"],"properties":{"table_id":{"type":"string","minLength":1},"field_id":{"type":"string","minLength":1}}}`,
			handle: (*Router).deleteField,
		},
		{
			Category: CategoryFields, Phrase: "update field", Local: "แก้ไขฟิลด์", Op: "update_field",
			Tool: toolPrefix + "bitable_v1_appTableField_update", Bitable: true,
			Schema: `{"type":"object","required":["table_id","field_id"],"properties":{"table_id":{"type":"string","minLength":1},"field_id":{"type":"string","minLength":1},"field_name":{"type":"string"},"type":{"type":"integer"},"ui_type":{"type":"string"},"property":{"type":"object"}}}`,
			handle: (*Router).updateField,
		},

		// Records
		{
			Category: CategoryRecords, Phrase: "create record", Local: "สร้างข้อมูล", Op: "create_record",
			Tool: toolPrefix + "bitable_v1_appTableRecord_create", Bitable: true,
			Schema: `{"type":"object","required":["table_id"],"properties":{"table_id":{"type":"string","minLength":1},"fields":{"type":"object"}}}`,
			handle: (*Router).createRecord,
		},
		{
			Category: CategoryRecords, Phrase: "batch create", Local: "สร้างหลายรายการ", Op: "batch_create",
			Tool: toolPrefix + "bitable_v1_appTableRecord_batchCreate", Bitable: true,
			Schema: `{"type":"object","required":["table_id","records"],"properties":{"table_id":{"type":"string","minLength":1},"records":{"type":"array","items":{"type":"object"}}}}`,
			handle: (*Router).batchCreateRecords,
		},
		{
			Category: CategoryRecords, Phrase: "update record", Local: "แก้ไขข้อมูล", Op: "update_record",
			Tool: toolPrefix + "bitable_v1_appTableRecord_update", Bitable: true,
			Schema: `{"type":"object","required":["table_id","record_id"],"properties":{"table_id":{"type":"string","minLength":1},"record_id":{"type":"string","minLength":1},"fields":{"type":"object"}}}`,
			handle: (*Router).updateRecord,
		},
		{
			Category: CategoryRecords, Phrase: "batch update", Local: "แก้ไขหลายรายการ", Op: "batch_update",
			Tool: toolPrefix + "bitable_v1_appTableRecord_batchUpdate", Bitable: true,
			Schema: `{"type":"object","required":["table_id","records"],"properties":{"table_id":{"type":"string","minLength":1},"records":{"type":"array","items":{"type":"object"}}}}`,
			handle: (*Router).batchUpdateRecords,
		},
		{
			Category: CategoryRecords, Phrase: "delete record", Local: "ลบข้อมูล", Op: "delete_record",
			Tool: toolPrefix + "bitable_v1_appTableRecord_delete", Bitable: true,
			Schema: `{"type":"object","required":["table_id","record_id"],"properties":{"table_id":{"type":"string","minLength":1},"record_id":{"type":"string","minLength":1}}}`,
			handle: (*Router).deleteRecord,
		},
		{
			Category: CategoryRecords, Phrase: "batch delete", Local: "ลบหลายรายการ", Op: "batch_delete",
			Tool: toolPrefix + "bitable_v1_appTableRecord_batchDelete", Bitable: true,
			Schema: `{"type":"object","required":["table_id","record_ids"],"properties":{"table_id":{"type":"string","minLength":1},"record_ids":{"type":"array","items":{"type":"string"}}}}`,
			handle: (*Router).batchDeleteRecords,
		},
		{
			Category: CategoryRecords, Phrase: "search records", Local: "ค้นหาข้อมูล", Op: "search_records",
			Tool: toolPrefix + "bitable_v1_appTableRecord_search", Bitable: true,
			Schema: `{"type":"object","required":["table_id"],"properties":{"table_id":{"type":"string","minLength":1},"field_names":{"type":"array","items":{"type":"string"}},"filter":{"type":["object","null"]},"sort":{"type":"array"},"limit":{"type":"integer","minimum":1,"maximum":500}}}`,
			handle: (*Router).searchRecords,
		},

		// Users
		{
			Category: CategoryUsers, Phrase: "get user", Local: "ดูข้อมูลผู้ใช้", Op: "get_user",
			Tool:   toolPrefix + "contact_v3_user_get",
			Schema: `{"type":"object","required":["user_id"],"properties":{"user_id":{"type":"string","minLength":1}}}`,
			handle: (*Router).getUser,
		},
		{
			Category: CategoryUsers, Phrase: "list users", Local: "ดูรายชื่อผู้ใช้", Op: "list_users",
			Tool:   toolPrefix + "contact_v3_user_list",
			Schema: `{"type":"object","properties":{"department_id":{"type":"string"},"limit":{"type":"integer","minimum":1,"maximum":500}}}`,
			handle: (*Router).listUsers,
		},
		{
			Category: CategoryUsers, Phrase: "get department", Local: "ดูแผนก", Op: "get_department",
			Tool:   toolPrefix + "contact_v3_department_get",
			Schema: `{"type":"object","required":["department_id"],"properties":{"department_id":{"type":"string","minLength":1}}}`,
			handle: (*Router).getDepartment,
		},
		{
			Category: CategoryUsers, Phrase: "list departments", Local: "ดูรายชื่อแผนก", Op: "list_departments",
			Tool:   toolPrefix + "contact_v3_department_list",
			Schema: schemaLimit,
			handle: (*Router).listDepartments,
		},

		// Documents
		{
			Category: CategoryDocuments, Phrase: "get document content", Local: "ดูเนื้อหาเอกสาร", Op: "get_document_content",
			Tool:   toolPrefix + "docx_v1_document_rawContent",
			Schema: `{"type":"object","required":["document_id"],"properties":{"document_id":{"type":"string","minLength":1}}}`,
			handle: (*Router).getDocumentContent,
		},
		{
			Category: CategoryDocuments, Phrase: "get document", Local: "ดูเอกสาร", Op: "get_document",
			Tool:   toolPrefix + "docx_v1_documentBlock_list",
			Schema: `{"type":"object","required":["document_id"],"properties":{"document_id":{"type":"string","minLength":1}}}`,
			handle: (*Router).getDocument,
		},
		{
			Category: CategoryDocuments, Phrase: "update document", Local: "แก้ไขเอกสาร", Op: "update_document",
			Tool:   toolPrefix + "docx_v1_documentBlock_patch",
			Schema: `{"type":"object","required":["document_id","block_id"],"properties":{"document_id":{"type":"string","minLength":1},"block_id":{"type":"string","minLength":1},"update_data":{"type":"object"}}}`,
			handle: (*Router).updateDocument,
		},

		// Messaging
		{
			Category: CategoryMessaging, Phrase: "create chat", Local: "สร้างแชท", Op: "create_chat",
			Tool:   toolPrefix + "im_v1_chat_create",
			Schema: `{"type":"object","properties":{"name":{"type":"string"},"description":{"type":"string"},"chat_type":{"enum":["private","public"]},"user_ids":{"type":"array","items":{"type":"string"}}}}`,
			handle: (*Router).createChat,
		},
		{
			Category: CategoryMessaging, Phrase: "list chats", Local: "ดูแชท", Op: "list_chats",
			Tool:   toolPrefix + "im_v1_chat_list",
			handle: (*Router).listChats,
		},
		{
			Category: CategoryMessaging, Phrase: "send message", Local: "ส่งข้อความ", Op: "send_message",
			Tool:   toolPrefix + "im_v1_message_create",
			Schema: `{"type":"object","required":["receive_id","content"],"properties":{"receive_id":{"type":"string","minLength":1},"receive_id_type":{"enum":["chat_id","open_id","user_id","union_id","email"]},"msg_type":{"type":"string"},"content":{"type":"string","minLength":1}}}`,
			handle: (*Router).sendMessage,
		},
		{
			Category: CategoryMessaging, Phrase: "get chat members", Local: "ดูสมาชิกแชท", Op: "get_chat_members",
			Tool:   toolPrefix + "im_v1_chatMembers_get",
			Schema: `{"type":"object","required":["chat_id"],"properties":{"chat_id":{"type":"string","minLength":1}}}`,
			handle: (*Router).getChatMembers,
		},

		// Wiki
		{
			Category: CategoryWiki, Phrase: "get wiki", Local: "ดู wiki", Op: "get_wiki",
			Tool:   toolPrefix + "wiki_v2_space_getNode",
			Schema: `{"type":"object","required":["token"],"properties":{"token":{"type":"string","minLength":1},"obj_type":{"type":"string"}}}`,
			handle: (*Router).getWiki,
		},
	}
}

func clientToken(kind string) string {
	return kind + "_" + uuid.NewString()
}

// tool returns the remote operation name for op.
func (r *Router) tool(op string) string {
	for _, rt := range r.routes {
		if rt.Op == op {
			return rt.Tool
		}
	}
	return ""
}

// === Tables ===

func (r *Router) createTable(ctx context.Context, p Params) (string, error) {
	name := p.String("name", "New Table")
	_, err := r.bitable(ctx, r.tool("create_table"), nil, map[string]any{
		"data": map[string]any{
			"table": map[string]any{
				"name":              name,
				"default_view_name": p.String("view_name", "Default View"),
				"fields":            p.List("fields"),
			},
		},
	})
	if err != nil {
		return "", err
	}
	return r.T("table.created", map[string]any{"Name": name}), nil
}

func (r *Router) listTables(ctx context.Context, _ Params) (string, error) {
	res, err := r.bitable(ctx, r.tool("list_tables"), nil, map[string]any{
		"params": map[string]any{"page_size": 50},
	})
	if err != nil {
		return "", err
	}
	tables := items(res)
	if len(tables) == 0 {
		return r.T("table.list_empty"), nil
	}
	return r.list(r.T("table.list_header"), tables, func(i int, t map[string]any) string {
		return r.T("table.list_item", map[string]any{
			"Index": i,
			"Name":  text(t, "name", r.T("common.untitled")),
			"ID":    text(t, "table_id", ""),
		})
	}), nil
}

func (r *Router) deleteTable(ctx context.Context, p Params) (string, error) {
	_, err := r.bitable(ctx, r.tool("delete_table"), map[string]any{"table_id": p.String("table_id", "")}, map[string]any{})
	if err != nil {
		return "", err
	}
	return r.T("table.deleted"), nil
}

func (r *Router) updateTable(ctx context.Context, p Params) (string, error) {
	name := p.String("name", "")
	_, err := r.bitable(ctx, r.tool("update_table"), map[string]any{"table_id": p.String("table_id", "")}, map[string]any{
		"data": map[string]any{"name": name},
	})
	if err != nil {
		return "", err
	}
	return r.T("table.renamed", map[string]any{"Name": name}), nil
}

// === Fields ===

func (r *Router) createField(ctx context.Context, p Params) (string, error) {
	name := p.String("field_name", "")
	_, err := r.bitable(ctx, r.tool("create_field"), map[string]any{"table_id": p.String("table_id", "")}, map[string]any{
		"data": map[string]any{
			"field_name": name,
			"type":       p.Int("type", 1),
			"ui_type":    p.String("ui_type", "Text"),
			"property":   p.Object("property"),
		},
		"params": map[string]any{"client_token": clientToken("field")},
	})
	if err != nil {
		return "", err
	}
	return r.T("field.created", map[string]any{"Name": name}), nil
}

func (r *Router) listFields(ctx context.Context, p Params) (string, error) {
	res, err := r.bitable(ctx, r.tool("list_fields"), map[string]any{"table_id": p.String("table_id", "")}, map[string]any{
		"params": map[string]any{"page_size": 50},
	})
	if err != nil {
		return "", err
	}
	fields := items(res)
	if len(fields) == 0 {
		return r.T("field.list_empty"), nil
	}
	return r.list(r.T("field.list_header"), fields, func(i int, f map[string]any) string {
		return r.T("field.list_item", map[string]any{
			"Index": i,
			"Name":  text(f, "field_name", r.T("common.untitled")),
			"Type":  text(f, "ui_type", r.T("common.not_specified")),
		})
	}), nil
}

func (r *Router) deleteField(ctx context.Context, p Params) (string, error) {
	_, err := r.bitable(ctx, r.tool("delete_field"), map[string]any{
		"table_id": p.String("table_id", ""),
		"field_id": p.String("field_id", ""),
	}, map[string]any{})
	if err != nil {
		return "", err
	}
	return r.T("field.deleted"), nil
}

func (r *Router) updateField(ctx context.Context, p Params) (string, error) {
	_, err := r.bitable(ctx, r.tool("update_field"), map[string]any{
		"table_id": p.String("table_id", ""),
		"field_id": p.String("field_id", ""),
	}, map[string]any{
		"data": map[string]any{
			"field_name": p.Value("field_name", nil),
			"type":       p.Value("type", nil),
			"ui_type":    p.Value("ui_type", nil),
			"property":   p.Object("property"),
		},
	})
	if err != nil {
		return "", err
	}
	return r.T("field.updated"), nil
}

// === Records ===

func (r *Router) createRecord(ctx context.Context, p Params) (string, error) {
	_, err := r.bitable(ctx, r.tool("create_record"), map[string]any{"table_id": p.String("table_id", "")}, map[string]any{
		"data": map[string]any{"fields": p.Object("fields")},
		"params": map[string]any{
			"client_token": clientToken("record"),
			"user_id_type": "open_id",
		},
	})
	if err != nil {
		return "", err
	}
	return r.T("record.created"), nil
}

func (r *Router) batchCreateRecords(ctx context.Context, p Params) (string, error) {
	records := p.List("records")
	_, err := r.bitable(ctx, r.tool("batch_create"), map[string]any{"table_id": p.String("table_id", "")}, map[string]any{
		"data": map[string]any{"records": records},
		"params": map[string]any{
			"client_token": clientToken("batch"),
			"user_id_type": "open_id",
		},
	})
	if err != nil {
		return "", err
	}
	return r.T("record.batch_created", map[string]any{"Count": len(records)}), nil
}

func (r *Router) updateRecord(ctx context.Context, p Params) (string, error) {
	_, err := r.bitable(ctx, r.tool("update_record"), map[string]any{
		"table_id":  p.String("table_id", ""),
		"record_id": p.String("record_id", ""),
	}, map[string]any{
		"data":   map[string]any{"fields": p.Object("fields")},
		"params": map[string]any{"user_id_type": "open_id"},
	})
	if err != nil {
		return "", err
	}
	return r.T("record.updated"), nil
}

func (r *Router) batchUpdateRecords(ctx context.Context, p Params) (string, error) {
	records := p.List("records")
	_, err := r.bitable(ctx, r.tool("batch_update"), map[string]any{"table_id": p.String("table_id", "")}, map[string]any{
		"data":   map[string]any{"records": records},
		"params": map[string]any{"user_id_type": "open_id"},
	})
	if err != nil {
		return "", err
	}
	return r.T("record.batch_updated", map[string]any{"Count": len(records)}), nil
}

func (r *Router) deleteRecord(ctx context.Context, p Params) (string, error) {
	_, err := r.bitable(ctx, r.tool("delete_record"), map[string]any{
		"table_id":  p.String("table_id", ""),
		"record_id": p.String("record_id", ""),
	}, map[string]any{})
	if err != nil {
		return "", err
	}
	return r.T("record.deleted"), nil
}

func (r *Router) batchDeleteRecords(ctx context.Context, p Params) (string, error) {
	ids := p.List("record_ids")
	_, err := r.bitable(ctx, r.tool("batch_delete"), map[string]any{"table_id": p.String("table_id", "")}, map[string]any{
		"data": map[string]any{"records": ids},
	})
	if err != nil {
		return "", err
	}
	return r.T("record.batch_deleted", map[string]any{"Count": len(ids)}), nil
}

func (r *Router) searchRecords(ctx context.Context, p Params) (string, error) {
	res, err := r.bitable(ctx, r.tool("search_records"), map[string]any{"table_id": p.String("table_id", "")}, map[string]any{
		"data": map[string]any{
			"field_names": p.List("field_names"),
			"filter":      p.Value("filter", nil),
			"sort":        p.List("sort"),
		},
		"params": map[string]any{"page_size": p.Int("limit", 10)},
	})
	if err != nil {
		return "", err
	}
	records := items(res)
	if len(records) == 0 {
		return r.T("record.search_empty"), nil
	}
	return r.T("record.search_found", map[string]any{"Count": len(records)}) + "\n\n" + formatRecords(records), nil
}

// === Users ===

func (r *Router) getUser(ctx context.Context, p Params) (string, error) {
	res, err := r.call(ctx, r.tool("get_user"), map[string]any{
		"params": map[string]any{"user_id_type": "open_id"},
		"path":   map[string]any{"user_id": p.String("user_id", "")},
	})
	if err != nil {
		return "", err
	}
	user := object(res, "user")
	na := r.T("common.not_specified")
	return r.T("user.info", map[string]any{
		"Name":  text(user, "name", na),
		"Email": text(user, "enterprise_email", na),
	}), nil
}

func (r *Router) listUsers(ctx context.Context, p Params) (string, error) {
	query := map[string]any{
		"user_id_type": "open_id",
		"page_size":    p.Int("limit", 20),
	}
	if dept := p.String("department_id", ""); dept != "" {
		query["department_id"] = dept
	}
	res, err := r.call(ctx, r.tool("list_users"), map[string]any{"params": query})
	if err != nil {
		return "", err
	}
	users := items(res)
	if len(users) == 0 {
		return r.T("user.list_empty"), nil
	}
	na := r.T("common.not_specified")
	return r.list(r.T("user.list_header"), users, func(i int, u map[string]any) string {
		return r.T("user.list_item", map[string]any{
			"Index": i,
			"Name":  text(u, "name", na),
			"Email": text(u, "enterprise_email", na),
		})
	}), nil
}

func (r *Router) getDepartment(ctx context.Context, p Params) (string, error) {
	res, err := r.call(ctx, r.tool("get_department"), map[string]any{
		"params": map[string]any{"department_id_type": "open_department_id"},
		"path":   map[string]any{"department_id": p.String("department_id", "")},
	})
	if err != nil {
		return "", err
	}
	dept := object(res, "department")
	return r.T("department.info", map[string]any{
		"Name":    text(dept, "name", r.T("common.not_specified")),
		"Members": text(dept, "member_count", "0"),
	}), nil
}

func (r *Router) listDepartments(ctx context.Context, p Params) (string, error) {
	res, err := r.call(ctx, r.tool("list_departments"), map[string]any{
		"params": map[string]any{
			"department_id_type": "open_department_id",
			"page_size":          p.Int("limit", 20),
		},
	})
	if err != nil {
		return "", err
	}
	depts := items(res)
	if len(depts) == 0 {
		return r.T("department.list_empty"), nil
	}
	return r.list(r.T("department.list_header"), depts, func(i int, d map[string]any) string {
		return r.T("department.list_item", map[string]any{
			"Index":   i,
			"Name":    text(d, "name", r.T("common.not_specified")),
			"Members": text(d, "member_count", "0"),
		})
	}), nil
}

// === Documents ===

func (r *Router) getDocument(ctx context.Context, p Params) (string, error) {
	res, err := r.call(ctx, r.tool("get_document"), map[string]any{
		"params": map[string]any{"page_size": 50},
		"path":   map[string]any{"document_id": p.String("document_id", "")},
	})
	if err != nil {
		return "", err
	}
	blocks := items(res)
	if len(blocks) == 0 {
		return r.T("document.blocks_empty"), nil
	}
	return r.T("document.blocks", map[string]any{"Count": len(blocks)}), nil
}

func (r *Router) getDocumentContent(ctx context.Context, p Params) (string, error) {
	res, err := r.call(ctx, r.tool("get_document_content"), map[string]any{
		"params": map[string]any{"lang": 0},
		"path":   map[string]any{"document_id": p.String("document_id", "")},
	})
	if err != nil {
		return "", err
	}
	content := text(res, "content", "")
	if content == "" {
		return r.T("document.content_empty"), nil
	}
	return r.T("document.content", map[string]any{"Content": truncate(content, maxContentLen, "...")}), nil
}

func (r *Router) updateDocument(ctx context.Context, p Params) (string, error) {
	_, err := r.call(ctx, r.tool("update_document"), map[string]any{
		"data":   p.Object("update_data"),
		"params": map[string]any{"client_token": clientToken("doc")},
		"path": map[string]any{
			"document_id": p.String("document_id", ""),
			"block_id":    p.String("block_id", ""),
		},
	})
	if err != nil {
		return "", err
	}
	return r.T("document.updated"), nil
}

// === Messaging ===

func (r *Router) createChat(ctx context.Context, p Params) (string, error) {
	name := p.String("name", "New Chat")
	_, err := r.call(ctx, r.tool("create_chat"), map[string]any{
		"data": map[string]any{
			"name":         name,
			"description":  p.String("description", ""),
			"chat_type":    p.String("chat_type", "private"),
			"user_id_list": p.List("user_ids"),
		},
		"params": map[string]any{"user_id_type": "open_id"},
	})
	if err != nil {
		return "", err
	}
	return r.T("chat.created", map[string]any{"Name": name}), nil
}

func (r *Router) listChats(ctx context.Context, _ Params) (string, error) {
	res, err := r.call(ctx, r.tool("list_chats"), map[string]any{
		"params": map[string]any{"page_size": 20, "user_id_type": "open_id"},
	})
	if err != nil {
		return "", err
	}
	chats := items(res)
	if len(chats) == 0 {
		return r.T("chat.list_empty"), nil
	}
	return r.list(r.T("chat.list_header"), chats, func(i int, c map[string]any) string {
		return r.T("chat.list_item", map[string]any{
			"Index":   i,
			"Name":    text(c, "name", r.T("common.untitled")),
			"Members": text(c, "member_count", "0"),
		})
	}), nil
}

func (r *Router) sendMessage(ctx context.Context, p Params) (string, error) {
	_, err := r.call(ctx, r.tool("send_message"), map[string]any{
		"data": map[string]any{
			"receive_id": p.String("receive_id", ""),
			"msg_type":   p.String("msg_type", "text"),
			"content":    p.String("content", ""),
		},
		"params": map[string]any{"receive_id_type": p.String("receive_id_type", "chat_id")},
	})
	if err != nil {
		return "", err
	}
	return r.T("chat.message_sent"), nil
}

func (r *Router) getChatMembers(ctx context.Context, p Params) (string, error) {
	res, err := r.call(ctx, r.tool("get_chat_members"), map[string]any{
		"params": map[string]any{"member_id_type": "open_id", "page_size": 50},
		"path":   map[string]any{"chat_id": p.String("chat_id", "")},
	})
	if err != nil {
		return "", err
	}
	members := items(res)
	if len(members) == 0 {
		return r.T("chat.members_empty"), nil
	}
	return r.list(r.T("chat.members_header"), members, func(i int, m map[string]any) string {
		return r.T("chat.members_item", map[string]any{
			"Index": i,
			"Name":  text(m, "name", r.T("common.not_specified")),
		})
	}), nil
}

// === Wiki ===

func (r *Router) getWiki(ctx context.Context, p Params) (string, error) {
	res, err := r.call(ctx, r.tool("get_wiki"), map[string]any{
		"params": map[string]any{
			"token":    p.String("token", ""),
			"obj_type": p.String("obj_type", "wiki"),
		},
	})
	if err != nil {
		return "", err
	}
	node := object(res, "node")
	return r.T("wiki.node", map[string]any{"Title": text(node, "title", r.T("common.not_specified"))}), nil
}
