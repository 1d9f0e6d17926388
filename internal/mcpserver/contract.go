package mcpserver

// WorkflowGuide tells an MCP client how to drive a conversation from
// transcript to sent invoice.
const WorkflowGuide = `# Voice Invoice Workflow

An invoice is assembled over a conversation and sent in one step.

## Steps

1. ` + "`list_clients`" + ` shows the client directory. Add missing clients with
   ` + "`add_client`" + ` (an email is required before anything can be sent).
2. ` + "`start_session`" + ` opens a conversation and returns its ` + "`id`" + `. A directory
   with a single client preselects it.
3. ` + "`take_turn`" + ` sends one transcript. Describe the whole invoice each
   time a correction is needed: line items are replaced, not appended.
4. ` + "`get_draft`" + ` returns the draft, the selected client and ` + "`ready`" + `.
   Use ` + "`select_client`" + ` when the client was not recognized.
5. ` + "`send_invoice`" + ` numbers, renders, emails and records the draft once
   ` + "`ready`" + ` is true. The number (INV-YYYYMMDD-NNN) is returned.

## Rules

- Quantities must be greater than zero. Rates may be zero, never negative.
- The tax rate is a fraction between 0 and 1 (0.08 is 8%).
- Totals are always computed by the server. Values sent by the client
  are ignored.
- A failed send never consumes the draft; it can be retried.
`
