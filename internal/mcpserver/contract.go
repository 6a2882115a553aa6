package mcpserver

// PostcardFormatContract describes the postcard fields that LLM consumers
// should follow when creating or updating postcards.
const PostcardFormatContract = `# Postcard Format

A postcard saves one Bible passage together with personal study notes.

## Fields

| Field              | Type            | Rules                                                   |
|--------------------|-----------------|---------------------------------------------------------|
| ` + "`id`" + `               | string          | Assigned by the server, never changes.                  |
| ` + "`reference`" + `        | string          | REQUIRED. Human-readable reference, e.g. John 3:16.     |
| ` + "`text`" + `             | string          | REQUIRED. The passage text.                             |
| ` + "`tags`" + `             | list of strings | Optional. Order and duplicates are preserved.           |
| ` + "`commentary`" + `       | string          | Optional note.                                          |
| ` + "`personalThoughts`" + ` | string          | Optional note.                                          |
| ` + "`questions`" + `        | string          | Optional note.                                          |
| ` + "`createdAt`" + `        | timestamp       | Set once on create.                                     |
| ` + "`updatedAt`" + `        | timestamp       | Refreshed on every update.                              |

## Rules

1. **Reference and text** are trimmed; a value that is empty after trimming is rejected.
2. **Update replaces everything.** Send every field you want to keep. An omitted
   note is cleared, omitted tags become an empty list.
3. **Fetch text first.** Use ` + "`lookup_verse`" + ` to get the passage text for a reference
   rather than writing it from memory. The result names the translation used.
4. **Deletes are permanent.**

## Example

` + "```" + `json
{
  "reference": "Psalm 46:10",
  "text": "Be still, and know that I am God.",
  "tags": ["peace", "trust"],
  "questions": "What keeps me from being still?"
}
` + "```" + `
`
