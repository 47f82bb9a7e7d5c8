package chat

const HelpText = `I can help you analyze your data! Here's what you can do:

**Ask Questions:**
- "What is the average sales?"
- "Show me the top 10 products"
- "How many rows are in the data?"

**Get Insights:**
- "What trends do you see?"
- "Are there any outliers?"
- "Summarize this data"

**Visualize:**
- "Show me a chart of sales by region"
- "Create a pie chart"

**Follow-up:**
- I remember our conversation, so you can ask follow-up questions!
- "What about for last month?" (after asking about sales)

Just ask naturally and I'll figure out what you need!`
