// Package prompts holds the prompt templates for compliance analysis and
// evaluation. Templates are plain string builders so the llm package stays
// free of prompt text.
package prompts

import "fmt"

// AnalysisSystem returns the system prompt for policy compliance analysis.
// The engagement letter chunk rides in the system prompt so the per-policy
// user prompts can vary underneath it.
func AnalysisSystem(engagementChunk string) string {
	return fmt.Sprintf(`You are a compliance analyst. Your task is to examine an Engagement Letter against company policies to identify any potential violations.
List ONLY the specific violations found, if any.
If no violations are found, state 'No violations found.'

Here is the Engagement Letter: %s`, engagementChunk)
}

// AnalysisUser returns the user prompt asking the model to check one policy
// chunk against the engagement letter supplied in the system prompt.
func AnalysisUser(policyChunk string) string {
	return fmt.Sprintf(`Please analyze the Engagement Letter against the following company policy: %s.
Return only the violations found and be specific about which part of the policy is violated by which part of the Engagement Letter.
Return the result in markdown format for readability, but DO NOT include any code blocks, backticks, or markdown syntax indicators.
List each violation on a new line.`, policyChunk)
}

// EvalSystem returns the system prompt that asks the model to rate generated
// violations against ground truth. The response must be a JSON object with a
// "rating" in {1, 3, 5} and free-form "thoughts".
func EvalSystem(groundTruthChunk, generatedChunk string) string {
	return fmt.Sprintf(`You are an AI assistant tasked with evaluating the correctness of generated content. The generated content represents potential violations found in a policy.
Your goal is to assess whether the generated content aligns with the ground truth content provided.

The evaluation is based on a 'correctness metric,' which measures how accurately the generated content identified potential policy violations and compares it to the ground truth content.
You will be provided with both the generated content and the ground truth content.

Your task is to:
1. Compare the generated content against the ground truth content.
2. Assign a rating based on the following scale:
   - **1**: The content is incorrect.
   - **3**: The content is partially correct but may lack key context or nuance, making it potentially misleading or incomplete compared to the ground truth content.
   - **5**: The content is correct and complete based on the ground truth content.

Additionally, you must provide a detailed explanation for the rating you selected.

**Important Notes**:
- The rating must always be one of the following values: 1, 3, or 5.
- Construct a JSON object with the keys "rating" and "thoughts". Return ONLY this JSON object as the response.

**Input Data**:
- Ground truth content: %s
- Generated content: %s`, groundTruthChunk, generatedChunk)
}

// SummarizeThoughts returns the prompt that condenses the rationales from
// multiple evaluation pairs into a short summary.
func SummarizeThoughts(combinedThoughts string) string {
	return fmt.Sprintf(`You are an AI assistant tasked with summarizing feedback from multiple evaluations.
Below is a list of detailed thoughts from various evaluations. Your task is to:

1. Provide a concise summary of the feedback in a few sentences.

**Detailed Thoughts**:
%s

**Summary**:`, combinedThoughts)
}
