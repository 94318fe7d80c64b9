package prompts

// OCRSystemPrompt defines the role for PDF text extraction.
const OCRSystemPrompt = `You are a high-fidelity OCR assistant.`

// OCRUserPrompt instructs the model to return RAG-friendly markdown.
const OCRUserPrompt = "Extract all text from this PDF with high fidelity. " +
	"Return plain markdown optimized for RAG chunking with headings where meaningful."
