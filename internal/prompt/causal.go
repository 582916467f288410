// Package prompt builds the query formats sent to the collaborator: a
// dataset briefing followed by the causal task framing, and the fixed prompt
// wrapping each execution result.
package prompt

import (
	"fmt"
	"strings"

	"github.com/causalab/causalab/internal/dataset"
)

// methodsList enumerates the candidate causal inference methods offered to
// the collaborator.
const methodsList = `[
    IPW (Inverse Probability Weighting): Choose the right estimand (ATE/ATT/ATC), and compute the causal effect,
    Linear regression with control variables: Build a regression model with the treatment, outcome, and confounders/control variables, and compute the causal effects,
    Instrumental variable: Build an instrumental variable model, and compute the causal effects associated with the treatment variable,
    Matching: Choose the correct estimand (ATE/ATT/ATC), and match accordingly, and then compute the causal effects,
    Difference-in-differences: Build a difference-in-differences model, and output the coefficient of the variable of interest,
    Regression discontinuity design: Build a regression discontinuity design model, and output the coefficient of the variable of interest,
    Linear regression / difference-in-means: Either build a regression model consisting of the treatment and outcome variables, and compute the coefficient associated with the treatment variable or compute the difference in means across treatment and control groups,
    Generalized linear models / GLM: Build a GLM model, and output the coefficient of the variable of interest,
    Frontdoor adjustment: Build a causal graph, identify a mediator variable between the treatment and outcome, check for frontdoor criterion, and compute the causal effect using the frontdoor adjustment formula]`

// approvedPackages is the allow-list asserted to the collaborator. It is a
// documented contract, not a technical control: enforcement, if any, is the
// installed package set of the sandbox image.
const approvedPackages = `**Important: Only use these approved packages:**
- pandas (as pd)
- numpy (as np)
- scipy
- scikit-learn (sklearn)
- statsmodels
- dowhy
- rdd (for regression discontinuity design)
- linearmodels
- econml`

// printedResults lists what the generated code must print at the end.
const printedResults = `You need to print the final results, including:
    1. The causal effect (the value only)
    2. The standard deviation (the value only)
    3. The causal inference method that was used to compute the effect (the method name only)
    4. The treatment variable (the variable name only)
    5. The outcome variable (the variable name only)
    6. The mediator variable (the variable name only if frontdoor adjustment was used)
    7. RCT: True / False (NA if not sure; whether the data is from a randomized controlled trial or not)
    8. The covariates / control variables that were used in the causal inference model (the variable names only)
    9. Instrumental variable, if instrumental variable method was used (the variable name only)
    10. Running variable, if regression discontinuity design was used (the variable name only)
    11. Temporal variable, if difference-in-differences was used (the variable name only)
    12. Results of statistical tests, if applicable
    13. Brief Explanation for model choice
    14. The regression formula, if applicable.
If a variable is not applicable, print "NA" for it.`

// CausalFormat is the direct causal-analysis query style: one setup prompt
// carrying the dataset briefing and the task, then the fix-or-analyze prompt
// around each execution result.
type CausalFormat struct {
	Query       string
	DatasetPath string
	Description string
}

// PreQueries profiles the dataset and renders the setup prompt.
func (f *CausalFormat) PreQueries() ([]string, error) {
	p, err := dataset.Load(f.DatasetPath)
	if err != nil {
		return nil, fmt.Errorf("profile dataset: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert in statistics and causal reasoning. You will answer a causal question on a tabular dataset.\n\n")
	fmt.Fprintf(&b, "The dataset is located at: %s.\n\n", f.DatasetPath)
	fmt.Fprintf(&b, "The dataset has the following description:\n```\n%s\n```\n\n", f.Description)
	fmt.Fprintf(&b, "To help you understand it, here is a statistical summary of the dataset:\n```\n%s\n```\n\n", p.Describe())
	fmt.Fprintf(&b, "Here are the columns and their types:\n```\n%s\n```\n\n", p.DTypes())
	fmt.Fprintf(&b, "Here are the first 5 rows of the dataset:\n```\n%s\n```\n\n", p.Head())
	fmt.Fprintf(&b, "If there are fewer than 10 columns, here is the covariance of the numeric columns:\n```\n%s\n```\n\n", p.Covariance())
	fmt.Fprintf(&b, "Finally, here is the count of null values per column:\n```\n%s\n```\n\n", p.NullCounts())
	fmt.Fprintf(&b, "The causal question I would like you to answer is:\n```\n%s\n```\n\n", f.Query)
	fmt.Fprintf(&b, "Here are some example methods; you can choose one from them: %s\n\n", methodsList)
	fmt.Fprintf(&b, "Using the descriptions and information from the dataset, write a Python code to build the causal inference model based on the method and variables you have selected, and computes the causal effect to answer the query.\n")
	fmt.Fprintf(&b, "If you need to preprocess the data, please do so in the code.\n")
	fmt.Fprintf(&b, "%s\n\n", approvedPackages)
	fmt.Fprintf(&b, "Do not code yourself what is already implemented in the libraries.\n")
	fmt.Fprintf(&b, "%s\n\n", printedResults)
	fmt.Fprintf(&b, "The code you output will be executed, and you will receive the output. Please make sure to output only one block of code, and make sure the code prints the result you are looking for at the end.\n")
	fmt.Fprintf(&b, "Everything between your first code block: '```python' and '```' will be executed. If there is an error, you will have several attempts to correct the code.\n")
	fmt.Fprintf(&b, "Remember, the dataset is located at %s.\n", f.DatasetPath)

	return []string{b.String()}, nil
}

// AnalysisPrompt embeds one execution result verbatim and asks the
// collaborator to either fix the code or analyze the result.
func (f *CausalFormat) AnalysisPrompt(codeOutput string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The code you provided has been executed, here is the output:\n```\n%s\n```\n", codeOutput)
	fmt.Fprintf(&b, "If the code returns an error, please provide a corrected version of the code. Output the entire code, not only the part that needs to be corrected.\n")
	fmt.Fprintf(&b, "Only provide the code if there is an error. Otherwise, if the previous code was executed, please provide a brief analysis of the results.\n")
	fmt.Fprintf(&b, "Use a single code block. If the code succeeds, do not add any new code, just provide the analysis.\n")
	return b.String()
}

// PostQueries returns no fixed post-loop prompts for this style.
func (f *CausalFormat) PostQueries() []string { return nil }

// CoTFormat is the chain-of-thought variant: the setup prompt walks the
// collaborator through variable identification, method selection, and
// implementation planning before asking for code.
type CoTFormat struct {
	Query       string
	DatasetPath string
	Description string
}

// PreQueries profiles the dataset and renders the step-by-step setup prompt.
func (f *CoTFormat) PreQueries() ([]string, error) {
	p, err := dataset.Load(f.DatasetPath)
	if err != nil {
		return nil, fmt.Errorf("profile dataset: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert in causal inference. You will use a chain-of-thought approach to answer a causal question on a tabular dataset.\n")
	fmt.Fprintf(&b, "The dataset is located at: %s\n", f.DatasetPath)
	fmt.Fprintf(&b, "The dataset has the following description:\n```\n%s\n```\n", f.Description)
	fmt.Fprintf(&b, "To help you understand it, here are the columns and their types:\n```\n%s\n```\n", p.DTypes())
	fmt.Fprintf(&b, "Here is the statistical summary of the dataset:\n```\n%s\n```\n", p.Describe())
	fmt.Fprintf(&b, "Here are the first 5 rows of the dataset:\n```\n%s\n```\n", p.Head())
	fmt.Fprintf(&b, "If there are fewer than 10 columns, here is the covariance of the numeric columns:\n```\n%s\n```\n", p.Covariance())
	fmt.Fprintf(&b, "Here is the count of null values per column:\n```\n%s\n```\n", p.NullCounts())
	fmt.Fprintf(&b, "The causal question I would like you to answer is:\n```\n%s\n```\n\n", f.Query)
	fmt.Fprintf(&b, "Let us approach this problem step by step.\n")
	fmt.Fprintf(&b, "Step 1. First, go through the dataset description and the columns and their types. Then, identify the treatment variable, the outcome variable, and the potential confounders.\n")
	fmt.Fprintf(&b, "Explain your reasoning for choosing these variables. Remember, the dataset is located at: %s.\n\n", f.DatasetPath)
	fmt.Fprintf(&b, "Step 2. What would be the right estimand to consider for this problem? Then, choose the most appropriate method that can be used to estimate the causal effect. The available methods are:\n%s\n\n", methodsList)
	fmt.Fprintf(&b, "Explain why you chose the selected method, and how the data and its description support your choice. This means you should explain why the identification assumptions of the method are satisfied.\n\n")
	fmt.Fprintf(&b, "Step 3. Next, we will plan the implementation. Before writing the code, describe your implementation process. This includes:\n")
	fmt.Fprintf(&b, "1. Describing the necessary preprocessing steps.\n")
	fmt.Fprintf(&b, "2. How we will select the variables to use in the model.\n\n")
	fmt.Fprintf(&b, "Step 4. Finally, reflecting on the previous steps, write Python code to answer the causal question: %s.\n", f.Query)
	fmt.Fprintf(&b, "Feel free to preprocess the data.\n")
	fmt.Fprintf(&b, "%s\n", approvedPackages)
	fmt.Fprintf(&b, "Use the methods from the above libraries to implement the method you chose. Be careful about implementation.\n\n")
	fmt.Fprintf(&b, "%s\n\n", printedResults)
	fmt.Fprintf(&b, "The code you write will be executed, and you will next analyze the output. To ease the process, please output one block of code, and make sure the code prints the key results and values.\n")
	fmt.Fprintf(&b, "Everything between your first code block: '```python' and '```' will be executed. If there is an error, you will have several attempts to correct the code. Hence, if there is an error, please fix it and re-run.\n")

	return []string{b.String()}, nil
}

// AnalysisPrompt matches the direct format's fix-or-analyze prompt.
func (f *CoTFormat) AnalysisPrompt(codeOutput string) string {
	direct := CausalFormat{}
	return direct.AnalysisPrompt(codeOutput)
}

// PostQueries returns no fixed post-loop prompts for this style.
func (f *CoTFormat) PostQueries() []string { return nil }
