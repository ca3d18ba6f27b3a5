// Package llm contains the provider-neutral model client interface and the
// Oracle built on top of it. The oracle answers the three kinds of questions
// the intent resolver asks: yes/no, closed multiple choice and bounded free
// text. Provider adapters live in the openai, anthropic and pythonbridge
// subpackages.
package llm
