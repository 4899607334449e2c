package descriptions

import "sort"

// Tool names exposed by the MCP server
const (
	ToolIntake     = "form_intake"
	ToolAnswer     = "form_answer"
	ToolStatus     = "form_status"
	ToolExport     = "form_export"
	ToolDispose    = "form_dispose"
	ToolServerInfo = "form_server_info"
)

const (
	FormIntakeDescription = `Open a form document and start a guided filling session.

**When to use:** A user wants to fill in a PDF form or a scanned/photographed form (PNG, JPEG, GIF, TIFF, WEBP).

**Why it's useful:** Detects the fields to fill. Interactive PDF forms are read from their own controls; other documents are read as text (OCR for images) and fields are inferred from their labels.

**Examples:**
• "Start filling enrolment-form.pdf"
• "Help me complete this scanned application" (pass content_base64 and name for uploads)

**Common workflows:**
1. form_intake → relay the returned question to the user → form_answer with their reply → repeat until complete → form_export

**Best practices:** Keep the returned session_id; every other tool needs it. Ask exactly the question returned, one field at a time.`

	FormAnswerDescription = `Submit the user's answer for the field currently being asked.

**When to use:** After relaying a question from form_intake or a previous form_answer.

**Why it's useful:** Validates the answer against the field type (email, phone, date DD/MM/YYYY, SSN, ...). Accepted answers move the session to the next field; rejected answers return a re-prompt and a reason.

**Examples:**
• Valid email: {"session_id": "...", "answer": "ada@example.com"} → next question
• Invalid email: {"session_id": "...", "answer": "ada"} → "That email is not valid: ..."

**Best practices:** Pass the user's words as-is; validation happens server side and the answer is stored as given.`

	FormStatusDescription = `Show the progress of a filling session.

**When to use:** To check which field is next, what has been answered, or whether the form is complete.

**Why it's useful:** Returns the field list, the cursor position, collected values and the conversation so far.

**Best practices:** Use before form_export to confirm the session is complete.`

	FormExportDescription = `Write the filled document for a completed session.

**When to use:** After form_answer reports the form is complete.

**Why it's useful:** Interactive PDF forms have their own controls filled and locked. Other documents get the answers written at the detected field positions. Images are placed on a Letter page first.

**Examples:**
• Default location: {"session_id": "..."} → <name>-filled.pdf in the output directory
• With an answer sheet: {"session_id": "...", "summary": true} → also writes <name>-filled.xlsx

**Best practices:** The session ends after a successful export. A failed export keeps the session so it can be retried.`

	FormDisposeDescription = `Discard a filling session and release its document.

**When to use:** The user abandons the form or wants to start over.

**Best practices:** Sessions also expire on their own after a period of inactivity.`

	FormServerInfoDescription = `Get server information, available tools, limits, and usage guidance.

**When to use:** At the start of a conversation to learn where documents are read from and written to.

**Why it's useful:** Lists the document and output directories, active sessions, and the supported document formats.`
)

// ToolDescriptions maps tool names to their descriptions
var ToolDescriptions = map[string]string{
	ToolIntake:     FormIntakeDescription,
	ToolAnswer:     FormAnswerDescription,
	ToolStatus:     FormStatusDescription,
	ToolExport:     FormExportDescription,
	ToolDispose:    FormDisposeDescription,
	ToolServerInfo: FormServerInfoDescription,
}

// Usage lines shown by form_server_info
var ToolUsage = map[string]string{
	ToolIntake:     `{"path": "/forms/application.pdf"}`,
	ToolAnswer:     `{"session_id": "<id>", "answer": "Ada Lovelace"}`,
	ToolStatus:     `{"session_id": "<id>"}`,
	ToolExport:     `{"session_id": "<id>", "output": "application-done.pdf", "summary": true}`,
	ToolDispose:    `{"session_id": "<id>"}`,
	ToolServerInfo: `{}`,
}

// GetToolDescription returns the description for a tool
func GetToolDescription(toolName string) string {
	if desc, exists := ToolDescriptions[toolName]; exists {
		return desc
	}
	return "Tool description not available"
}

// GetAllToolNames returns the tool names in sorted order
func GetAllToolNames() []string {
	names := make([]string, 0, len(ToolDescriptions))
	for name := range ToolDescriptions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
