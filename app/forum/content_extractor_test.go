package forum

import (
	"strings"
	"testing"
)

func TestContentExtractorValidHTML(t *testing.T) {
	extractor := NewContentExtractor()

	htmlContent := `
	<!DOCTYPE html>
	<html>
	<head><title>Test Article</title></head>
	<body>
		<header><h1>Site Header</h1><nav>Navigation</nav></header>
		<main>
			<article>
				<h1>Main Article Title</h1>
				<p>This is the main content of the article. It contains several paragraphs of meaningful text that should be extracted by the readability algorithm.</p>
				<p>This is another paragraph with more content. The readability algorithm should identify this as the main content area and extract it properly.</p>
				<p>Here is some more substantial content to ensure we meet the character threshold. This paragraph adds more context and information that would be valuable to readers.</p>
			</article>
		</main>
		<aside><div>Advertisement</div></aside>
		<footer><p>Copyright 2024</p></footer>
	</body>
	</html>
	`

	result, err := extractor.Run([]byte(htmlContent))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.Contains(result, "main content of the article") {
		t.Errorf("Expected extracted content to contain main article text")
	}
	if strings.Contains(result, "Advertisement") {
		t.Errorf("Expected extracted content to exclude advertisement")
	}
}

func TestContentExtractorEmptyData(t *testing.T) {
	extractor := NewContentExtractor()

	result, err := extractor.Run(nil)
	if err == nil {
		t.Errorf("Expected error for empty data")
	}
	if result != "" {
		t.Errorf("Expected empty result for empty data")
	}
}

func TestContentExtractorScriptRemoval(t *testing.T) {
	extractor := NewContentExtractor()

	htmlContent := `
	<!DOCTYPE html>
	<html>
	<head><title>Article with Scripts</title></head>
	<body>
		<script>console.log("This script should be removed");</script>
		<article>
			<h1>Clean Article Content</h1>
			<p>This is the main content that should be extracted without any scripts or styles interfering. The article contains substantial text content that meets the readability algorithm's requirements.</p>
			<p>The content extraction should focus on the meaningful text and ignore technical elements. This paragraph provides additional context and information for readers.</p>
			<p>Here is more substantial content to ensure we meet the character threshold. This article discusses important topics and provides valuable information to readers.</p>
		</article>
	</body>
	</html>
	`

	result, err := extractor.Run([]byte(htmlContent))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.Contains(result, "main content that should be extracted") {
		t.Errorf("Expected extracted content to contain main article text")
	}
	if strings.Contains(result, "console.log") {
		t.Errorf("Expected extracted content to exclude script content")
	}
}
